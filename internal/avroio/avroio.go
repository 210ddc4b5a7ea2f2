// Package avroio holds the Avro object container helpers shared by the manifest
// and index metadata codecs.
package avroio

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/INLOpen/nexuslake/core"
	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"
)

// MustParse parses a schema into a private cache so named types that several
// metadata schemas share never clash.
func MustParse(s string) avro.Schema {
	schema, err := avro.ParseWithCache(s, "", &avro.SchemaCache{})
	if err != nil {
		panic(fmt.Sprintf("avroio: invalid avro schema: %v", err))
	}
	return schema
}

// ParseCodec maps a configured compression name to an OCF block codec.
func ParseCodec(name string) (ocf.CodecName, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return ocf.ZStandard, nil
	case "none", "null":
		return ocf.Null, nil
	case "deflate":
		return ocf.Deflate, nil
	case "snappy":
		return ocf.Snappy, nil
	default:
		return "", &core.ValidationError{Field: "format_compression", Value: name, Message: fmt.Sprintf("unsupported metadata codec %q", name)}
	}
}

// Encode writes records into a single object container file.
func Encode[T any](schema avro.Schema, codec ocf.CodecName, records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoderWithSchema(schema, &buf, ocf.WithCodec(codec))
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads every record of an object container file.
func Decode[T any](data []byte) ([]T, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out []T
	for dec.HasNext() {
		var r T
		if err := dec.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := dec.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
