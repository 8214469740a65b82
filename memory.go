package aidra

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryBlock is a labelled, persistent slab of agent memory.
type MemoryBlock struct {
	Label       string
	Description string
	Content     string
	UpdatedAt   time.Time
	Protected   bool // cannot be deleted
	ReadOnly    bool // cannot be mutated
	Limit       int  // 0 = unlimited; max allowed len(Content) in characters
}

// MemoryBackend is the durable store a MemoryRepository writes through to.
// Implementations (memory/sqlite) persist one row per (agentID, label).
type MemoryBackend interface {
	LoadAll(ctx context.Context, agentID string) ([]MemoryBlock, error)
	Upsert(ctx context.Context, agentID string, block MemoryBlock) error
	Delete(ctx context.Context, agentID, label string) error
}

// InitialMemoryDescriptor seeds a fresh agent's memory at creation time.
type InitialMemoryDescriptor struct {
	Label       string
	Description string
	Content     string
	Protected   bool
}

// DefaultInitialBlocks is the small ordered set of descriptors a new
// agent's memory is seeded from when the backend has no existing rows.
var DefaultInitialBlocks = []InitialMemoryDescriptor{
	{Label: "persona", Description: "Who the assistant is and how it behaves.", Content: "I am a helpful, precise assistant."},
	{Label: "user_profile", Description: "Facts about the user, accumulated over time.", Content: "", Protected: true},
}

// MemoryRepository is an agent's in-memory cache over MemoryBackend.
//
// Invariant: the cache and the backing store contain the same set of
// blocks at every quiescent point. Every mutation writes to the store
// first; a failing write never mutates the cache.
type MemoryRepository struct {
	agentID string
	backend MemoryBackend

	mu     sync.RWMutex
	blocks map[string]MemoryBlock
	order  []string // insertion order, for deterministic XML serialization
}

// NewMemoryRepository constructs a repository bound to one agent's backend.
// Call Load to populate the cache (seeding initial blocks if the backend is
// empty) before first use.
func NewMemoryRepository(agentID string, backend MemoryBackend) *MemoryRepository {
	return &MemoryRepository{agentID: agentID, backend: backend, blocks: make(map[string]MemoryBlock)}
}

// Load reads all rows from the backend and replaces the cache. If the
// backend has no rows for this agent, seeds it from DefaultInitialBlocks.
func (m *MemoryRepository) Load(ctx context.Context) error {
	blocks, err := m.backend.LoadAll(ctx, m.agentID)
	if err != nil {
		return fmt.Errorf("memory: load: %w", err)
	}

	if len(blocks) == 0 {
		for _, d := range DefaultInitialBlocks {
			b := MemoryBlock{Label: d.Label, Description: d.Description, Content: d.Content, Protected: d.Protected, UpdatedAt: time.Now()}
			if err := m.backend.Upsert(ctx, m.agentID, b); err != nil {
				return fmt.Errorf("memory: seed %q: %w", d.Label, err)
			}
			blocks = append(blocks, b)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = make(map[string]MemoryBlock, len(blocks))
	m.order = m.order[:0]
	for _, b := range blocks {
		m.blocks[b.Label] = b
		m.order = append(m.order, b.Label)
	}
	return nil
}

// Has reports whether label exists in the cache.
func (m *MemoryRepository) Has(label string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[label]
	return ok
}

// Get returns the block for label, or false if absent.
func (m *MemoryRepository) Get(label string) (MemoryBlock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[label]
	return b, ok
}

// GetAll returns all blocks in insertion order.
func (m *MemoryRepository) GetAll() []MemoryBlock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemoryBlock, 0, len(m.order))
	for _, label := range m.order {
		out = append(out, m.blocks[label])
	}
	return out
}

// SetOptions configures an upsert via Set.
type SetOptions struct {
	Protected bool
	ReadOnly  bool
	Limit     int
}

// Set upserts label: creates it if absent, replaces description/content if
// present. Rejects a limit violation or a write to an existing read-only
// block. Writes the store first; the cache is updated only on success.
func (m *MemoryRepository) Set(ctx context.Context, label, description, content string, opts SetOptions) error {
	m.mu.RLock()
	existing, exists := m.blocks[label]
	m.mu.RUnlock()

	if exists && existing.ReadOnly {
		return wrapErr(ErrValidation, fmt.Sprintf("memory: block %q is read-only", label))
	}

	limit := opts.Limit
	if exists && limit == 0 {
		limit = existing.Limit
	}
	if limit > 0 && len([]rune(content)) > limit {
		return wrapErr(ErrValidation, fmt.Sprintf("memory: block %q content exceeds limit %d", label, limit))
	}

	b := MemoryBlock{
		Label: label, Description: description, Content: content,
		UpdatedAt: time.Now(), Protected: opts.Protected, ReadOnly: opts.ReadOnly, Limit: limit,
	}
	if exists {
		if !opts.Protected {
			b.Protected = existing.Protected
		}
	}

	if err := m.backend.Upsert(ctx, m.agentID, b); err != nil {
		return fmt.Errorf("memory: set %q: %w", label, err)
	}

	m.mu.Lock()
	if _, already := m.blocks[label]; !already {
		m.order = append(m.order, label)
	}
	m.blocks[label] = b
	m.mu.Unlock()
	return nil
}

// SetContent replaces content on an existing block. Fails if label absent.
func (m *MemoryRepository) SetContent(ctx context.Context, label, content string) error {
	m.mu.RLock()
	existing, exists := m.blocks[label]
	m.mu.RUnlock()
	if !exists {
		return wrapErr(ErrNotFound, fmt.Sprintf("memory: block %q not found", label))
	}
	return m.Set(ctx, label, existing.Description, content, SetOptions{Protected: existing.Protected, ReadOnly: existing.ReadOnly, Limit: existing.Limit})
}

// Delete removes label. Fails if protected; returns (false, nil) if absent.
func (m *MemoryRepository) Delete(ctx context.Context, label string) (bool, error) {
	m.mu.RLock()
	existing, exists := m.blocks[label]
	m.mu.RUnlock()
	if !exists {
		return false, nil
	}
	if existing.Protected {
		return false, wrapErr(ErrValidation, fmt.Sprintf("memory: block %q is protected and cannot be deleted", label))
	}

	if err := m.backend.Delete(ctx, m.agentID, label); err != nil {
		return false, fmt.Errorf("memory: delete %q: %w", label, err)
	}

	m.mu.Lock()
	delete(m.blocks, label)
	for i, l := range m.order {
		if l == label {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return true, nil
}

// ToolReplaceMemory requires an exact substring match of old in content and
// replaces exactly its first occurrence with newContent.
func (m *MemoryRepository) ToolReplaceMemory(ctx context.Context, label, old, newContent string) (string, error) {
	b, ok := m.Get(label)
	if !ok {
		return "", wrapErr(ErrNotFound, fmt.Sprintf("memory block %q not found", label))
	}
	idx := strings.Index(b.Content, old)
	if idx < 0 {
		return "", wrapErr(ErrValidation, "old_content must match an exact substring of the current block content")
	}
	updated := b.Content[:idx] + newContent + b.Content[idx+len(old):]
	if err := m.SetContent(ctx, label, updated); err != nil {
		return "", err
	}
	return fmt.Sprintf("Memory block %q updated.", label), nil
}

// MemoryInsertPosition selects where ToolInsertMemory writes.
type MemoryInsertPosition string

const (
	InsertBeginning MemoryInsertPosition = "beginning"
	InsertEnd       MemoryInsertPosition = "end"
)

// ToolInsertMemory prepends or appends content with a newline separator.
// Fails if label is absent.
func (m *MemoryRepository) ToolInsertMemory(ctx context.Context, label, content string, position MemoryInsertPosition) (string, error) {
	b, ok := m.Get(label)
	if !ok {
		return "", wrapErr(ErrNotFound, fmt.Sprintf("memory block %q not found", label))
	}
	var updated string
	switch position {
	case InsertBeginning:
		if b.Content == "" {
			updated = content
		} else {
			updated = content + "\n" + b.Content
		}
	case InsertEnd:
		if b.Content == "" {
			updated = content
		} else {
			updated = b.Content + "\n" + content
		}
	default:
		return "", wrapErr(ErrValidation, fmt.Sprintf("invalid insert position %q", position))
	}
	if err := m.SetContent(ctx, label, updated); err != nil {
		return "", err
	}
	return fmt.Sprintf("Memory block %q updated.", label), nil
}

// ToolCreateMemory creates a block, applying defaultLimit when Limit is unset.
func (m *MemoryRepository) ToolCreateMemory(ctx context.Context, label, description, content string, defaultLimit int) (string, error) {
	if label == "" {
		return "", wrapErr(ErrValidation, "memory block label must not be empty")
	}
	if err := m.Set(ctx, label, description, content, SetOptions{Limit: defaultLimit}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Memory block %q created.", label), nil
}

// ToolDeleteMemory deletes label and returns a human-readable status.
func (m *MemoryRepository) ToolDeleteMemory(ctx context.Context, label string) (string, error) {
	ok, err := m.Delete(ctx, label)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Memory block %q does not exist.", label), nil
	}
	return fmt.Sprintf("Memory block %q deleted.", label), nil
}

// --- XML serialization ---

type memoryXML struct {
	XMLName xml.Name       `xml:"memory"`
	Blocks  []memoryBlockXML `xml:"block"`
}

type memoryBlockXML struct {
	Label       string `xml:"label,attr"`
	Description string `xml:"description"`
	Content     string `xml:"content"`
}

// ToXML serializes the cache deterministically: a <memory> wrapper
// containing one <block label="…"> per entry in insertion order.
func (m *MemoryRepository) ToXML() string {
	blocks := m.GetAll()
	doc := memoryXML{Blocks: make([]memoryBlockXML, 0, len(blocks))}
	for _, b := range blocks {
		doc.Blocks = append(doc.Blocks, memoryBlockXML{Label: b.Label, Description: b.Description, Content: b.Content})
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "<memory></memory>"
	}
	return string(out)
}
