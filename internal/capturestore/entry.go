package capturestore

import (
	"fmt"
	"time"

	"github.com/dense-identity/applink/internal/applink"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Entry is one stored capture
type Entry struct {
	ID            string
	SessionID     string
	CorrelationID uint64
	Bytes         int64
	Duration      time.Duration
	Retries       int
	WAVPath       string
	Digest        string // hex blake2b-256 of the WAV file
	FinishedAt    time.Time
}

func EntryFromRecord(id string, rec applink.CaptureRecord) Entry {
	return Entry{
		ID:            id,
		SessionID:     rec.SessionID,
		CorrelationID: rec.CorrelationID,
		Bytes:         rec.Bytes,
		Duration:      rec.Duration,
		Retries:       rec.Retries,
		WAVPath:       rec.WAVPath,
		Digest:        rec.Digest,
		FinishedAt:    rec.FinishedAt,
	}
}

// EncodeEntry serializes an entry as a protobuf Struct. The correlation ID is
// carried as a decimal string since Struct numbers are doubles.
func EncodeEntry(e Entry) ([]byte, error) {
	ts := timestamppb.New(e.FinishedAt)
	st, err := structpb.NewStruct(map[string]any{
		"id":                  e.ID,
		"session_id":          e.SessionID,
		"correlation_id":      fmt.Sprintf("%d", e.CorrelationID),
		"bytes":               e.Bytes,
		"duration_ms":         e.Duration.Milliseconds(),
		"retries":             e.Retries,
		"wav_path":            e.WAVPath,
		"digest":              e.Digest,
		"finished_at_seconds": ts.GetSeconds(),
		"finished_at_nanos":   ts.GetNanos(),
	})
	if err != nil {
		return nil, fmt.Errorf("building capture entry: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshaling capture entry: %w", err)
	}
	return data, nil
}

func DecodeEntry(data []byte) (Entry, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(data, st); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal capture entry: %w", err)
	}
	fields := st.GetFields()

	var corrID uint64
	if _, err := fmt.Sscanf(fields["correlation_id"].GetStringValue(), "%d", &corrID); err != nil {
		return Entry{}, fmt.Errorf("bad correlation id: %w", err)
	}

	ts := &timestamppb.Timestamp{
		Seconds: int64(fields["finished_at_seconds"].GetNumberValue()),
		Nanos:   int32(fields["finished_at_nanos"].GetNumberValue()),
	}
	if !ts.IsValid() {
		return Entry{}, fmt.Errorf("invalid finish timestamp")
	}

	return Entry{
		ID:            fields["id"].GetStringValue(),
		SessionID:     fields["session_id"].GetStringValue(),
		CorrelationID: corrID,
		Bytes:         int64(fields["bytes"].GetNumberValue()),
		Duration:      time.Duration(fields["duration_ms"].GetNumberValue()) * time.Millisecond,
		Retries:       int(fields["retries"].GetNumberValue()),
		WAVPath:       fields["wav_path"].GetStringValue(),
		Digest:        fields["digest"].GetStringValue(),
		FinishedAt:    ts.AsTime(),
	}, nil
}
