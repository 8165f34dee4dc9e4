package storage

import (
	"errors"
	"testing"

	"evotrader/internal/model"
)

func TestDecodeRejectsVersionDrift(t *testing.T) {
	record := sampleGeneration("run", 1)
	record.CodecVersion = CurrentCodecVersion + 1
	data, err := EncodeGeneration(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeGeneration(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	policy := samplePolicy("run", 1)
	policy.SchemaVersion = 0
	data, err = EncodePolicy(policy)
	if err != nil {
		t.Fatalf("encode policy: %v", err)
	}
	if _, err := DecodePolicy(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeGenerationsChecksEveryRecord(t *testing.T) {
	good := sampleGeneration("run", 0)
	bad := sampleGeneration("run", 1)
	bad.VersionedRecord.SchemaVersion = 99
	data, err := EncodeGenerations([]model.GenerationRecord{good, bad})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeGenerations(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}
