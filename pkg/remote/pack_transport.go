package remote

import (
	"bytes"
	"fmt"
	"io"

	"github.com/nyxforge/gitcore/pkg/object"
)

func objectPackType(t object.ObjectType) (object.PackObjectType, error) {
	switch t {
	case object.TypeCommit:
		return object.PackCommit, nil
	case object.TypeTree:
		return object.PackTree, nil
	case object.TypeBlob:
		return object.PackBlob, nil
	case object.TypeTag:
		return object.PackTag, nil
	default:
		return 0, fmt.Errorf("unsupported object type %q", t)
	}
}

func packObjectType(t object.PackObjectType) (object.ObjectType, error) {
	switch t {
	case object.PackCommit:
		return object.TypeCommit, nil
	case object.PackTree:
		return object.TypeTree, nil
	case object.PackBlob:
		return object.TypeBlob, nil
	case object.PackTag:
		return object.TypeTag, nil
	default:
		return "", fmt.Errorf("unsupported pack entry type %d", t)
	}
}

// EncodePackTransport encodes records into a pack stream for the wire.
// Every entry is written in full (no deltas): transport packs favor
// simplicity and stream-ability over the space savings delta encoding
// gives on-disk packs.
func EncodePackTransport(w io.Writer, records []ObjectRecord) error {
	pw, err := object.NewPackWriter(w, uint32(len(records)))
	if err != nil {
		return fmt.Errorf("create pack writer: %w", err)
	}
	for _, rec := range records {
		packType, err := objectPackType(rec.Type)
		if err != nil {
			return err
		}
		if _, err := pw.WriteEntry(packType, rec.Data); err != nil {
			return fmt.Errorf("write pack entry for %s: %w", rec.Hash, err)
		}
	}
	if _, err := pw.Finish(); err != nil {
		return fmt.Errorf("finish pack: %w", err)
	}
	return nil
}

// DecodePackTransport decodes a pack stream into ObjectRecords.
func DecodePackTransport(data []byte) ([]ObjectRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	pf, err := object.ReadPack(data)
	if err != nil {
		return nil, fmt.Errorf("read pack: %w", err)
	}

	records := make([]ObjectRecord, 0, len(pf.Entries))
	for _, entry := range pf.Entries {
		if entry.Type == object.PackOfsDelta || entry.Type == object.PackRefDelta {
			return nil, fmt.Errorf("delta entries are not supported in transport packs")
		}
		objType, err := packObjectType(entry.Type)
		if err != nil {
			return nil, err
		}
		hash := object.HashObject(objType, entry.Data)
		records = append(records, ObjectRecord{Hash: hash, Type: objType, Data: entry.Data})
	}
	return records, nil
}

// EncodePackTransportToBytes is a convenience wrapper around EncodePackTransport.
func EncodePackTransportToBytes(records []ObjectRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePackTransport(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
