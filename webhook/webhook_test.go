package webhook

import (
	"context"
	"testing"

	aidra "github.com/nevindra/aidra"
)

type fakeRegistrar struct {
	hooks map[string]aidra.Webhook
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{hooks: make(map[string]aidra.Webhook)}
}

func (f *fakeRegistrar) Register(ctx context.Context, wh aidra.Webhook) error {
	f.hooks[wh.ID] = wh
	return nil
}

func (f *fakeRegistrar) ListByAgent(ctx context.Context, agentID string) ([]aidra.Webhook, error) {
	var out []aidra.Webhook
	for _, wh := range f.hooks {
		if wh.AgentID == agentID {
			out = append(out, wh)
		}
	}
	return out, nil
}

func (f *fakeRegistrar) Delete(ctx context.Context, id string) error {
	delete(f.hooks, id)
	return nil
}

func TestCreateGeneratesSecret(t *testing.T) {
	m := NewManager(newFakeRegistrar())
	wh, err := m.Create(context.Background(), "agent-1", "github", "on-push")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if wh.Secret == "" {
		t.Error("expected a generated secret")
	}
	if wh.ID == "" {
		t.Error("expected a generated ID")
	}
}

func TestListByAgentFiltersByAgent(t *testing.T) {
	m := NewManager(newFakeRegistrar())
	m.Create(context.Background(), "agent-1", "github", "on-push")
	m.Create(context.Background(), "agent-2", "stripe", "on-payment")

	hooks, err := m.ListByAgent(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("ListByAgent: %v", err)
	}
	if len(hooks) != 1 || hooks[0].Name != "github" {
		t.Errorf("expected 1 webhook named github, got %+v", hooks)
	}
}

func TestDelete(t *testing.T) {
	m := NewManager(newFakeRegistrar())
	wh, _ := m.Create(context.Background(), "agent-1", "github", "on-push")
	if err := m.Delete(context.Background(), wh.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	hooks, _ := m.ListByAgent(context.Background(), "agent-1")
	if len(hooks) != 0 {
		t.Errorf("expected webhook removed, got %+v", hooks)
	}
}
