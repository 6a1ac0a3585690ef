// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AuditKeyEnvVar names the environment variable holding the hex-encoded
// HMAC key for the chain recorder.
const AuditKeyEnvVar = "SCRIBE_AUDIT_KEY"

// ChainConfig configures a ChainRecorder.
type ChainConfig struct {
	// Path is the JSONL log file. Required.
	Path string

	// Key is the HMAC-SHA256 key. If empty, the key is read from
	// SCRIBE_AUDIT_KEY (hex); if that is unset too, an ephemeral key is
	// generated and a warning logged, since an ephemeral key makes the
	// log unverifiable after the process exits.
	Key []byte

	// MaxFileSize is the rotation threshold in bytes. Defaults to 100 MiB.
	MaxFileSize int64

	// RotateCount is how many rotated files to keep. Defaults to 5.
	RotateCount int
}

// chainEntry is one signed line of the log file.
//
// Event is kept as raw JSON so verification recomputes the signature
// over the exact bytes that were signed, not over a re-marshaled struct.
type chainEntry struct {
	Event    json.RawMessage `json:"event"`
	HMAC     string          `json:"hmac"`
	PrevHash string          `json:"prev_hash"`
}

// ChainRecorder writes events to a JSONL file as a tamper-evident chain.
//
// # Description
//
// Each line carries the event, an HMAC-SHA256 signature computed over
// (previous signature || event JSON), and the previous signature. The
// chain makes modification, deletion, or reordering of entries
// detectable by Verify. Opening an existing log seeds the chain from its
// last entry, so the chain stays unbroken across restarts and across
// size-based rotation.
//
// # Thread Safety
//
// Safe for concurrent use. Writes are serialized on an internal mutex.
type ChainRecorder struct {
	path        string
	key         []byte
	maxFileSize int64
	rotateCount int

	mu         sync.Mutex
	file       *os.File
	lastHash   []byte
	eventCount int
}

// NewChainRecorder opens (or creates) the chained log at config.Path.
//
// Inputs:
//   - config: See ChainConfig; only Path is required.
//
// Outputs:
//   - *ChainRecorder: A ready recorder.
//   - error: Non-nil if the directory or file cannot be prepared.
func NewChainRecorder(config ChainConfig) (*ChainRecorder, error) {
	if config.Path == "" {
		return nil, errors.New("audit log path is required")
	}
	key, err := resolveChainKey(config.Key)
	if err != nil {
		return nil, err
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = 100 << 20
	}
	if config.RotateCount <= 0 {
		config.RotateCount = 5
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	r := &ChainRecorder{
		path:        config.Path,
		key:         key,
		maxFileSize: config.MaxFileSize,
		rotateCount: config.RotateCount,
		lastHash:    readLastHash(config.Path),
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// resolveChainKey picks the HMAC key: explicit, environment, or ephemeral.
func resolveChainKey(key []byte) ([]byte, error) {
	if len(key) > 0 {
		return key, nil
	}
	if env := os.Getenv(AuditKeyEnvVar); env != "" {
		decoded, err := hex.DecodeString(env)
		if err != nil {
			return nil, fmt.Errorf("%s is not valid hex: %w", AuditKeyEnvVar, err)
		}
		return decoded, nil
	}
	ephemeral := make([]byte, 32)
	if _, err := rand.Read(ephemeral); err != nil {
		return nil, fmt.Errorf("failed to generate audit key: %w", err)
	}
	slog.Warn("Generated ephemeral audit HMAC key; set "+AuditKeyEnvVar+" to keep logs verifiable across restarts",
		"env_var", AuditKeyEnvVar)
	return ephemeral, nil
}

// readLastHash seeds the chain from the last entry of an existing log.
// A missing or unparseable file starts a fresh chain.
func readLastHash(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lastLine []byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			lastLine = append(lastLine[:0], scanner.Bytes()...)
		}
	}
	if len(lastLine) == 0 {
		return nil
	}

	var entry chainEntry
	if err := json.Unmarshal(lastLine, &entry); err != nil {
		slog.Warn("Audit log tail is unparseable, starting a fresh chain", "path", path, "error", err)
		return nil
	}
	hash, err := hex.DecodeString(entry.HMAC)
	if err != nil {
		slog.Warn("Audit log tail has an invalid signature, starting a fresh chain", "path", path)
		return nil
	}
	return hash
}

func (r *ChainRecorder) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	r.file = f
	return nil
}

// Record appends one signed entry to the log.
func (r *ChainRecorder) Record(ctx context.Context, event Event) error {
	event.normalize()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.maybeRotate(); err != nil {
		return err
	}

	mac := hmac.New(sha256.New, r.key)
	mac.Write(r.lastHash)
	mac.Write(eventJSON)
	signature := mac.Sum(nil)

	entry := chainEntry{
		Event:    eventJSON,
		HMAC:     hex.EncodeToString(signature),
		PrevHash: hex.EncodeToString(r.lastHash),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	r.lastHash = signature
	r.eventCount++
	return nil
}

// EventCount returns how many events this recorder has written.
func (r *ChainRecorder) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eventCount
}

// Path returns the active log file path.
func (r *ChainRecorder) Path() string {
	return r.path
}

// Close releases the log file. The recorder must not be used afterwards.
func (r *ChainRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// maybeRotate rotates the log when it exceeds the size threshold.
// Callers must hold r.mu.
func (r *ChainRecorder) maybeRotate() error {
	info, err := r.file.Stat()
	if err != nil || info.Size() < r.maxFileSize {
		return nil
	}

	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}

	oldest := fmt.Sprintf("%s.%d", r.path, r.rotateCount)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			return fmt.Errorf("failed to drop oldest audit log: %w", err)
		}
	}
	for i := r.rotateCount - 1; i >= 1; i-- {
		current := fmt.Sprintf("%s.%d", r.path, i)
		if _, err := os.Stat(current); err == nil {
			if err := os.Rename(current, fmt.Sprintf("%s.%d", r.path, i+1)); err != nil {
				return fmt.Errorf("failed to shift audit log %d: %w", i, err)
			}
		}
	}
	if err := os.Rename(r.path, r.path+".1"); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	slog.Info("Audit log rotated", "path", r.path)

	// The chain continues into the new file: its first entry's prev_hash
	// points at the rotated file's last signature.
	return r.open()
}

var _ Recorder = (*ChainRecorder)(nil)

// Verify checks the integrity of a chained log file.
//
// # Description
//
// Re-walks the file, recomputing every signature and checking that each
// entry's prev_hash matches the previous entry's signature. The first
// entry's prev_hash is taken as the chain anchor rather than required to
// be empty, so a file that continues a rotated chain still verifies on
// its own; signatures prove the anchor was produced with the key.
//
// Inputs:
//   - path: The JSONL log file. A missing file verifies as valid.
//   - key: The HMAC key the log was written with.
//
// Outputs:
//   - bool: True when no problems were found.
//   - []string: One human-readable line per detected problem.
//   - error: Non-nil only for I/O failures, not integrity failures.
func Verify(path string, key []byte) (bool, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil, nil
		}
		return false, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var problems []string
	var prevHash []byte
	first := true
	lineNum := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry chainEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			problems = append(problems, fmt.Sprintf("line %d: malformed JSON: %v", lineNum, err))
			first = false
			prevHash = nil
			continue
		}

		claimedPrev, err := hex.DecodeString(entry.PrevHash)
		if err != nil {
			problems = append(problems, fmt.Sprintf("line %d: invalid prev_hash encoding", lineNum))
			claimedPrev = nil
		}

		if first {
			prevHash = claimedPrev
		} else if !hmac.Equal(claimedPrev, prevHash) {
			problems = append(problems, fmt.Sprintf(
				"line %d: hash chain broken (entry deleted or reordered before this line)", lineNum))
			// Resync on the claimed value so one break reports once.
			prevHash = claimedPrev
		}
		first = false

		mac := hmac.New(sha256.New, key)
		mac.Write(prevHash)
		mac.Write(entry.Event)
		computed := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(computed), []byte(entry.HMAC)) {
			problems = append(problems, fmt.Sprintf("line %d: invalid signature (entry may have been tampered)", lineNum))
		}

		if sig, err := hex.DecodeString(entry.HMAC); err == nil {
			prevHash = sig
		} else {
			prevHash = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, problems, fmt.Errorf("failed to read audit log: %w", err)
	}

	return len(problems) == 0, problems, nil
}
