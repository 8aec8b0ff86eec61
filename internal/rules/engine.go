package rules

import (
	"sync"

	"luascript-server/internal/logger"
	"luascript-server/internal/scheduler"
	"luascript-server/internal/types"
)

// SignalCaller dispatches a script signal. The script host satisfies it.
type SignalCaller interface {
	Broadcast(signal string, args ...interface{})
}

// Engine assembles rules into live triggers and conditions. A rule's
// trigger firing starts a walk over its conditions; only when every
// condition validates does the action signal reach the scripts.
type Engine struct {
	factory *scheduler.EventFactory
	caller  SignalCaller

	mu    sync.Mutex
	rules []*boundRule
}

type boundRule struct {
	rule       *types.Rule
	trigger    scheduler.Trigger
	conditions []scheduler.Condition
}

// NewEngine creates a rule engine
func NewEngine(factory *scheduler.EventFactory, caller SignalCaller) *Engine {
	return &Engine{factory: factory, caller: caller}
}

// Load binds every rule in the configuration. Rules naming unknown
// trigger or condition types are skipped with a warning.
func (e *Engine) Load(config *types.RulesConfig) {
	for _, rule := range config.Rules {
		if err := e.bind(rule); err != nil {
			logger.Warn("Skipping rule %q: %v", rule.Name, err)
		}
	}
}

func (e *Engine) bind(rule *types.Rule) error {
	b := &boundRule{rule: rule}

	trigger := e.factory.CreateTrigger(rule.Trigger.Type, func(ctx map[string]string) {
		e.fire(b, ctx)
	})
	if trigger == nil {
		return &unknownTypeError{kind: "trigger", name: rule.Trigger.Type}
	}
	for name, value := range rule.Trigger.Params {
		trigger.ParseParam(name, value)
	}
	b.trigger = trigger

	for _, rc := range rule.Conditions {
		cond := e.factory.CreateCondition(rc.Type)
		if cond == nil {
			trigger.Close()
			return &unknownTypeError{kind: "condition", name: rc.Type}
		}
		for name, value := range rc.Params {
			cond.ParseParam(name, value)
		}
		b.conditions = append(b.conditions, cond)
	}

	e.mu.Lock()
	e.rules = append(e.rules, b)
	e.mu.Unlock()

	logger.Info("Rule %q armed (%s trigger, %d conditions)",
		rule.Name, rule.Trigger.Type, len(b.conditions))
	return nil
}

// fire walks the rule's conditions one at a time. Each condition decides
// asynchronously via its success and failure continuations; the first
// failure stops the walk silently.
func (e *Engine) fire(b *boundRule, ctx map[string]string) {
	e.validateFrom(b, 0, ctx)
}

func (e *Engine) validateFrom(b *boundRule, i int, ctx map[string]string) {
	if i >= len(b.conditions) {
		e.dispatch(b, ctx)
		return
	}
	b.conditions[i].Validate(func() {
		e.validateFrom(b, i+1, ctx)
	}, func() {
		logger.Debug("Rule %q suppressed by condition %d", b.rule.Name, i)
	})
}

func (e *Engine) dispatch(b *boundRule, ctx map[string]string) {
	logger.Info("Rule %q fired, dispatching signal %q", b.rule.Name, b.rule.Action.Signal)

	args := make([]interface{}, 0, len(b.rule.Action.Args)+1)
	for _, a := range b.rule.Action.Args {
		args = append(args, a)
	}
	if len(ctx) > 0 {
		args = append(args, ctx)
	}
	e.caller.Broadcast(b.rule.Action.Signal, args...)
}

// Clear drops every bound rule and its triggers
func (e *Engine) Clear() {
	e.mu.Lock()
	rules := e.rules
	e.rules = nil
	e.mu.Unlock()

	for _, b := range rules {
		if b.trigger != nil {
			b.trigger.Close()
		}
	}
}

// Rules returns the number of bound rules
func (e *Engine) Rules() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules)
}

type unknownTypeError struct {
	kind string
	name string
}

func (e *unknownTypeError) Error() string {
	return "unknown " + e.kind + " type " + e.name
}
