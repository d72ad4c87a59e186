package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// ToPCD writes the cloud in pcd format. Empty slots are written too, as NaN points.
func ToPCD(cloud *LandmarkCloud, out io.Writer, outputType PCDType) error {
	sizes := make([]string, numFields)
	types := make([]string, numFields)
	counts := make([]string, numFields)
	for f := range LandmarkFields {
		sizes[f] = strconv.Itoa(fieldSize)
		types[f] = "F"
		counts[f] = "1"
	}
	types[rgbField] = "U"

	var data string
	switch outputType {
	case PCDBinary:
		data = "binary"
	case PCDAscii:
		data = "ascii"
	default:
		return errors.Errorf("unsupported pcd type %d", outputType)
	}
	_, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		strings.Join(LandmarkFields, " "),
		strings.Join(sizes, " "),
		strings.Join(types, " "),
		strings.Join(counts, " "),
		cloud.Size(),
		1,
		cloud.Size(),
		data)
	if err != nil {
		return err
	}

	if outputType == PCDBinary {
		_, err = out.Write(cloud.Data())
		return err
	}
	for i := 0; i < cloud.Size(); i++ {
		vals := make([]string, numFields)
		for f := range vals {
			if f == rgbField {
				vals[f] = strconv.FormatUint(uint64(cloud.Uint(i, f)), 10)
				continue
			}
			vals[f] = strconv.FormatFloat(cloud.Float(i, f), 'g', -1, 32)
		}
		if _, err := fmt.Fprintln(out, strings.Join(vals, " ")); err != nil {
			return err
		}
	}
	return nil
}

type pcdHeader struct {
	fields []string
	width  int
	height int
	points int
	data   PCDType
}

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Split(value, " ")
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if value != strings.Join(LandmarkFields, " ") {
			return errors.Errorf("unsupported pcd fields %s", value)
		}
		header.fields = tokens
	case "SIZE", "TYPE", "COUNT":
		if len(tokens) != len(header.fields) {
			return errors.Errorf("unexpected number of fields in %s line", name)
		}
	case "WIDTH":
		if header.width, err = strconv.Atoi(value); err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
		if header.width < 0 {
			return errors.Errorf("negative WIDTH field %d", header.width)
		}
	case "HEIGHT":
		if header.height, err = strconv.Atoi(value); err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
		if header.height < 0 {
			return errors.Errorf("negative HEIGHT field %d", header.height)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
	case "POINTS":
		if header.points, err = strconv.Atoi(value); err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if header.points < 0 {
			return errors.Errorf("negative POINTS field %d", header.points)
		}
		if header.points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", header.points, header.width*header.height)
		}
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		default:
			return errors.Errorf("unsupported pcd data %s", value)
		}
	}
	return nil
}

// ReadPCD reads a landmark cloud written by ToPCD.
func ReadPCD(inRaw io.Reader) (*LandmarkCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	for index := 0; index < len(pcdHeaderFields); {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "cannot read pcd header")
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := parsePCDHeaderLine(line, index, &header); err != nil {
			return nil, err
		}
		index++
	}

	cloud := NewLandmarkCloud(header.points)
	if header.data == PCDBinary {
		if _, err := io.ReadFull(in, cloud.data); err != nil {
			return nil, errors.Wrap(err, "cannot read pcd data")
		}
		return cloud, nil
	}
	for i := 0; i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "cannot read pcd point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != numFields {
			return nil, errors.Errorf("point %d has %d values, expected %d", i, len(tokens), numFields)
		}
		for f, tok := range tokens {
			if f == rgbField {
				v, err := strconv.ParseUint(tok, 10, 32)
				if err != nil {
					return nil, errors.Wrapf(err, "invalid rgb value %s", tok)
				}
				binary.LittleEndian.PutUint32(cloud.field(i, f), uint32(v))
				continue
			}
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid value %s", tok)
			}
			cloud.putFloat(i, f, v)
		}
	}
	return cloud, nil
}
