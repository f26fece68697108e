package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Connerlevi/capnet/pkg/contracts"
)

func (s *Store) auditLogPath() string {
	return s.path(auditLogFile)
}

// AppendReceipt appends a receipt to the audit log as a single
// newline-delimited JSON line. Appends are serialized by auditMu
// independently of the capability/revocation mutex, since receipt
// writes never touch that state.
func (s *Store) AppendReceipt(r *contracts.Receipt) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal receipt: %w", err)
	}
	line = append(line, '\n')

	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	f, err := os.OpenFile(s.auditLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("store: open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("store: append to audit log: %w", err)
	}
	return f.Sync()
}

// ListReceipts returns every parseable receipt in the audit log, oldest
// first. A malformed trailing line — the kind left by a process killed
// mid-write — is skipped rather than failing the whole read; a malformed
// line anywhere else is also skipped, since the log is append-only and
// never rewritten in place.
func (s *Store) ListReceipts() ([]*contracts.Receipt, error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	f, err := os.Open(s.auditLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open audit log: %w", err)
	}
	defer f.Close()

	var out []*contracts.Receipt
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r contracts.Receipt
		if err := json.Unmarshal(line, &r); err != nil {
			s.log.Warn("store: skipping malformed audit log line", "error", err)
			continue
		}
		out = append(out, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scan audit log: %w", err)
	}
	return out, nil
}

// ListReceiptsPage returns up to limit receipts with ts >= since, in
// append order, resuming after afterReceiptID if set. A caller polling
// with cursor=<last receipt_id of previous page> never sees a receipt
// twice even if new ones have been appended since.
func (s *Store) ListReceiptsPage(since time.Time, afterReceiptID string, limit int) ([]*contracts.Receipt, error) {
	all, err := s.ListReceipts()
	if err != nil {
		return nil, err
	}

	start := 0
	if afterReceiptID != "" {
		for i, r := range all {
			if r.ReceiptID == afterReceiptID {
				start = i + 1
				break
			}
		}
	}

	out := make([]*contracts.Receipt, 0, limit)
	for _, r := range all[start:] {
		if r.Ts.Before(since) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
