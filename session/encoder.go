package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// CurrentSchemaVersion is the binary layout version written by Encode.
const CurrentSchemaVersion = 1

// Encode serializes a Record into the compact binary layout stored in Redis.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(CurrentSchemaVersion)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", r.UserID},
		{"accessTokenID", r.AccessTokenID},
		{"refreshTokenID", r.RefreshTokenID},
		{"deviceInfo", r.DeviceInfo},
		{"sourceIP", r.SourceIP},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a binary session blob. The SessionID is not part of the blob;
// callers set it from the Redis key.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, errors.New("unknown session schema version")
	}

	rec := &Record{SchemaVersion: version}

	for _, dst := range []*string{
		&rec.UserID,
		&rec.AccessTokenID,
		&rec.RefreshTokenID,
		&rec.DeviceInfo,
		&rec.SourceIP,
	} {
		length, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*dst = string(raw)
	}

	if err := binary.Read(reader, binary.BigEndian, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, err
	}

	return rec, nil
}
