// Package governance decides whether the executor may run a tool call.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is one tool call proposed by the model.
type Request struct {
	Tool      string
	Arguments string
	ChatID    string
}

type Result struct {
	Effect Effect
	Reason string
}

func allow() Result { return Result{Effect: EffectAllow, Reason: "Approved by default policy"} }

func deny(format string, args ...any) Result {
	return Result{Effect: EffectDeny, Reason: fmt.Sprintf(format, args...)}
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// Rules is the declarative form of a policy, as read from the config file.
type Rules struct {
	DeniedTools    []string
	DeniedPatterns []string
	DeniedHosts    []string
}

// DefaultPolicyEngine denies by tool name, by argument pattern and by the
// URL in a "url" argument. Everything else is allowed.
type DefaultPolicyEngine struct {
	DeniedTools map[string]bool
	DeniedRegex []*regexp.Regexp
	DeniedHosts []string
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{DeniedTools: make(map[string]bool)}
}

// New builds an engine from rules. Every invalid pattern is reported.
func New(rules Rules) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range rules.DeniedTools {
		e.DenyTool(name)
	}
	var errs []error
	for _, p := range rules.DeniedPatterns {
		if err := e.DenyArguments(p); err != nil {
			errs = append(errs, fmt.Errorf("pattern %q: %w", p, err))
		}
	}
	for _, h := range rules.DeniedHosts {
		e.DenyHost(h)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

// DenyHost blocks URLs whose host is host or one of its subdomains.
func (e *DefaultPolicyEngine) DenyHost(host string) {
	e.DeniedHosts = append(e.DeniedHosts, strings.ToLower(strings.TrimPrefix(host, ".")))
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedTools[req.Tool] {
		return deny("Tool '%s' is restricted by system policy", req.Tool), nil
	}
	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return deny("Arguments match restricted pattern: %s", re.String()), nil
		}
	}

	u, ok := urlArgument(req.Arguments)
	if !ok {
		return allow(), nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return deny("URL scheme '%s' is not allowed", u.Scheme), nil
	}
	host := strings.ToLower(u.Hostname())
	for _, denied := range e.DeniedHosts {
		if host == denied || strings.HasSuffix(host, "."+denied) {
			return deny("Host '%s' is restricted by system policy", host), nil
		}
	}
	return allow(), nil
}

// urlArgument parses the "url" field of a JSON argument object.
func urlArgument(arguments string) (*url.URL, bool) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.URL == "" {
		return nil, false
	}
	u, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil {
		return nil, false
	}
	return u, true
}
