// Package ros reads recorded ROS bags and decodes the sensor messages the estimator consumes.
package ros

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag")
	}
	return rb, nil
}

// ParseTopics decodes the messages of the given topics into JSON, kept in rb.TopicsAsJSON.
// An empty topic list selects every topic.
func ParseTopics(rb *rosbag.RosBag, topics []string) error {
	topicFilterFunc := func(string) bool { return true }
	if len(topics) > 0 {
		wanted := make(map[string]bool, len(topics))
		for _, topic := range topics {
			wanted[topic] = true
		}
		topicFilterFunc = func(topic string) bool {
			return wanted[topic]
		}
	}
	if err := rb.ParseTopicsToJSON("", func(int64) bool { return true }, topicFilterFunc, false); err != nil {
		return errors.Wrapf(err, "error while parsing bag to JSON")
	}
	return nil
}

// TopicKey returns the key gobag files the parsed messages of a topic under.
func TopicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// Record is one undecoded message of a topic.
type Record struct {
	Topic string
	Time  float64
	Raw   json.RawMessage
}

type metaOnly struct {
	Meta Time
}

// TopicRecords returns the messages of the given topics ordered by record time. Messages of
// one topic keep their bag order. ParseTopics must have been called for the topics.
func TopicRecords(rb *rosbag.RosBag, topics []string) ([]Record, error) {
	var all []Record
	for _, topic := range topics {
		msgs := rb.TopicsAsJSON[TopicKey(topic)]
		if msgs == nil {
			continue
		}
		for {
			data, err := msgs.ReadBytes('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			if len(data) > 0 {
				var meta metaOnly
				if err := json.Unmarshal(data, &meta); err != nil {
					return nil, errors.Wrapf(err, "bad message on %s", topic)
				}
				all = append(all, Record{Topic: topic, Time: meta.Meta.Seconds(), Raw: data})
			}
			if err != nil {
				break
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time < all[j].Time
	})
	return all, nil
}

// Decode unmarshals a record into one of the message types of this package.
func Decode[T any](r Record) (T, error) {
	var msg T
	if err := json.Unmarshal(r.Raw, &msg); err != nil {
		return msg, errors.Wrapf(err, "cannot decode message on %s", r.Topic)
	}
	return msg, nil
}
