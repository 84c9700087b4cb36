// pkg/framing/registry.go
package framing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ReceiveFactory builds a receive rule from the argument after the colon in
// a rule name such as "fixed:16". arg is empty when no colon is present.
type ReceiveFactory func(arg string) (ReceiveRule, error)

// Registry maps rule names to framing strategies so that rules can be picked
// from configuration or an API request.
type Registry struct {
	mu      sync.RWMutex
	receive map[string]ReceiveFactory
	send    map[string]SendRule
}

// NewRegistry creates a registry holding the built-in rules.
func NewRegistry() *Registry {
	r := &Registry{
		receive: make(map[string]ReceiveFactory),
		send:    make(map[string]SendRule),
	}

	r.RegisterReceive("raw", staticRule(nil))
	r.RegisterReceive("lf", staticRule(LineFeed))
	r.RegisterReceive("cr", staticRule(CarriageReturn))
	r.RegisterReceive("crlf", staticRule(CRLF))
	r.RegisterReceive("nul", staticRule(COBSFrame))
	r.RegisterReceive("fixed", func(arg string) (ReceiveRule, error) {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("fixed length must be a positive integer, got %q", arg)
		}
		return FixedLength(n), nil
	})

	r.RegisterSend("none", nil)
	r.RegisterSend("xor", AppendXORChecksum)
	r.RegisterSend("crc16", AppendCRC16CCITT)
	r.RegisterSend("cobs", COBSEncode)
	r.RegisterSend("cr", AppendSuffix('\r'))
	r.RegisterSend("lf", AppendSuffix('\n'))
	r.RegisterSend("crlf", AppendSuffix('\r', '\n'))

	return r
}

func staticRule(rule ReceiveRule) ReceiveFactory {
	return func(arg string) (ReceiveRule, error) {
		if arg != "" {
			return nil, fmt.Errorf("rule takes no argument, got %q", arg)
		}
		return rule, nil
	}
}

// RegisterReceive adds or replaces a receive rule factory.
func (r *Registry) RegisterReceive(name string, factory ReceiveFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receive[strings.ToLower(name)] = factory
}

// RegisterSend adds or replaces a send rule. A nil rule sends payloads unchanged.
func (r *Registry) RegisterSend(name string, rule SendRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.send[strings.ToLower(name)] = rule
}

// Receive resolves a receive rule name. The empty name means pass-through.
func (r *Registry) Receive(name string) (ReceiveRule, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, nil
	}

	key, arg, _ := strings.Cut(name, ":")

	r.mu.RLock()
	factory, ok := r.receive[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown receive rule: %s", key)
	}

	rule, err := factory(arg)
	if err != nil {
		return nil, fmt.Errorf("receive rule %s: %w", key, err)
	}
	return rule, nil
}

// Send resolves a send rule expression. Names joined with "+" are chained
// left to right, so "xor+lf" appends the checksum and then a line feed.
func (r *Registry) Send(expr string) (SendRule, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var rules []SendRule
	for _, name := range strings.Split(expr, "+") {
		name = strings.TrimSpace(name)
		rule, ok := r.send[name]
		if !ok {
			return nil, fmt.Errorf("unknown send rule: %s", name)
		}
		rules = append(rules, rule)
	}
	return Chain(rules...), nil
}

// ReceiveNames returns the registered receive rule names, sorted.
func (r *Registry) ReceiveNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.receive)
}

// SendNames returns the registered send rule names, sorted.
func (r *Registry) SendNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.send)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
