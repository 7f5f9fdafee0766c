// Package pairing manages access requests from unknown senders. Unauthorized
// messages are answered with a short code the owner can approve from the CLI,
// which adds the sender to the channel allowlist.
package pairing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/goclaw/internal/config"
)

const expireMs = 24 * 60 * 60 * 1000

// PendingPairing is one unapproved access request.
type PendingPairing struct {
	Channel      string `json:"channel"`
	SenderID     string `json:"senderId"`
	ChatID       string `json:"chatId"`
	Code         string `json:"code"`
	CreatedAtMs  int64  `json:"createdAtMs"`
	LastSeenAtMs int64  `json:"lastSeenAtMs"`
	RequestCount int    `json:"requestCount"`
}

type pairingStore struct {
	Pending []PendingPairing `json:"pending"`
}

// Issue describes the code handed back to an unauthorized sender.
type Issue struct {
	Code  string
	IsNew bool
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func storePath() (string, error) {
	data, err := config.DataPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(data, "pairing", "pending.json"), nil
}

func loadStore() (pairingStore, error) {
	var store pairingStore
	path, err := storePath()
	if err != nil {
		return store, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return store, err
	}
	// Corrupt stores reset to empty rather than blocking pairing.
	if err := json.Unmarshal(raw, &store); err != nil {
		return pairingStore{}, nil
	}
	return store, nil
}

func saveStore(store *pairingStore) error {
	path, err := storePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func cleanupExpired(store *pairingStore) {
	threshold := nowMs() - expireMs
	kept := store.Pending[:0]
	for _, entry := range store.Pending {
		if entry.LastSeenAtMs >= threshold {
			kept = append(kept, entry)
		}
	}
	store.Pending = kept
}

func newCode() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(hex[:6])
}

// IssuePairing records an access request and returns its code. Repeat
// requests from the same sender reuse the original code.
func IssuePairing(channel, senderID, chatID string) (Issue, error) {
	if strings.TrimSpace(channel) == "" || strings.TrimSpace(senderID) == "" || strings.TrimSpace(chatID) == "" {
		return Issue{}, fmt.Errorf("channel/sender/chat cannot be empty")
	}
	store, err := loadStore()
	if err != nil {
		return Issue{}, err
	}
	cleanupExpired(&store)

	for i := range store.Pending {
		entry := &store.Pending[i]
		if entry.Channel == channel && entry.SenderID == senderID {
			entry.LastSeenAtMs = nowMs()
			entry.RequestCount++
			if err := saveStore(&store); err != nil {
				return Issue{}, err
			}
			return Issue{Code: entry.Code, IsNew: false}, nil
		}
	}

	pending := PendingPairing{
		Channel:      channel,
		SenderID:     senderID,
		ChatID:       chatID,
		Code:         newCode(),
		CreatedAtMs:  nowMs(),
		LastSeenAtMs: nowMs(),
		RequestCount: 1,
	}
	store.Pending = append(store.Pending, pending)
	if err := saveStore(&store); err != nil {
		return Issue{}, err
	}
	return Issue{Code: pending.Code, IsNew: true}, nil
}

// ListPending returns unexpired requests, most recently seen first.
func ListPending() ([]PendingPairing, error) {
	store, err := loadStore()
	if err != nil {
		return nil, err
	}
	cleanupExpired(&store)
	if err := saveStore(&store); err != nil {
		return nil, err
	}
	sort.Slice(store.Pending, func(i, j int) bool {
		return store.Pending[i].LastSeenAtMs > store.Pending[j].LastSeenAtMs
	})
	return store.Pending, nil
}

// ApprovePairing removes the pending request and adds the sender to the
// channel allowlist in the saved config.
func ApprovePairing(channel, code string) (PendingPairing, error) {
	store, err := loadStore()
	if err != nil {
		return PendingPairing{}, err
	}
	cleanupExpired(&store)

	idx := -1
	for i, p := range store.Pending {
		if p.Channel == channel && strings.EqualFold(p.Code, code) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return PendingPairing{}, fmt.Errorf("pending pairing not found for channel=%s, code=%s", channel, code)
	}
	pending := store.Pending[idx]
	store.Pending = append(store.Pending[:idx], store.Pending[idx+1:]...)

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	allowlist := cfg.ChannelAllowlist(channel)
	if allowlist == nil {
		return PendingPairing{}, fmt.Errorf("channel '%s' does not support allowlist pairing", channel)
	}
	found := false
	for _, v := range *allowlist {
		if v == pending.SenderID {
			found = true
			break
		}
	}
	if !found {
		*allowlist = append(*allowlist, pending.SenderID)
	}
	if err := config.Save(cfg); err != nil {
		return PendingPairing{}, err
	}
	if err := saveStore(&store); err != nil {
		return PendingPairing{}, err
	}
	return pending, nil
}

// RejectPairing drops a pending request. Returns whether anything changed.
func RejectPairing(channel, code string) (bool, error) {
	store, err := loadStore()
	if err != nil {
		return false, err
	}
	cleanupExpired(&store)
	before := len(store.Pending)
	kept := store.Pending[:0]
	for _, p := range store.Pending {
		if p.Channel == channel && strings.EqualFold(p.Code, code) {
			continue
		}
		kept = append(kept, p)
	}
	store.Pending = kept
	changed := len(store.Pending) != before
	if changed {
		if err := saveStore(&store); err != nil {
			return false, err
		}
	}
	return changed, nil
}

// PairingPrompt renders the reply sent to an unauthorized sender.
func PairingPrompt(issue Issue) string {
	if issue.IsNew {
		return fmt.Sprintf("Access requires pairing.\nCode: %s\nOwner command: goclaw pair approve <channel> %s", issue.Code, issue.Code)
	}
	return fmt.Sprintf("Pairing pending.\nCode: %s\nOwner command: goclaw pair approve <channel> %s", issue.Code, issue.Code)
}
