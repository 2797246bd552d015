package access

import (
	"context"
	"reflect"
)

// SourceCallerIdentity is the source token that resolves to the identity of
// the current actor instead of a field of the prior record.
const SourceCallerIdentity = "current_identity"

// Prober is the slice of a record repository the ownership evaluator needs:
// a single existence probe against the repository's collection.
type Prober interface {
	Probe(ctx context.Context, query map[string]interface{}) (bool, error)
}

// Rule states how one field of an ownership probe is derived. Every source
// is either the SourceCallerIdentity token or the name of a field of the
// record as it was before the request. A rule with several sources only
// holds when all of them resolve to the identical value; otherwise the
// whole dependency is discarded, so a mismatched identity can never pass
// by accident.
type Rule struct {
	Field   string
	Sources []string
}

// Dependency is one entry of an entity's ownership graph: a repository that
// must contain a record matching the derived probe. Dependencies form an
// ordered list fixed at registration time; the configuration shorthand
// "self" has already been resolved to the entity's own repository here.
//
// SkipOnCreate marks dependencies that probe for the record being created
// and therefore cannot hold before it exists.
type Dependency struct {
	Repository   Prober
	Rules        []Rule
	SkipOnCreate bool
}

// Evaluate decides whether the actor may act on the record whose prior
// state is passed in.
//
// For every dependency a probe query is built from its rules; rules whose
// sources do not resolve contribute nothing, and a multi-source rule that
// resolves to diverging values voids its dependency entirely. Every
// dependency with a non-empty probe queries its repository for one matching
// record. The actor is authorized as soon as one dependency finds a match;
// the graph is a logical OR, modelling "owner or related-entity owner".
//
// When acceptZero is set, a graph without a single resolvable dependency
// authorizes by itself. Creation uses this, since there is no prior record
// to own.
func Evaluate(ctx context.Context, deps []Dependency, actor Actor, prior map[string]interface{}, acceptZero bool) (bool, error) {
	resolvable := 0
	for _, dep := range deps {
		query := buildProbe(dep, actor, prior)
		if len(query) == 0 {
			continue
		}
		resolvable++
		found, err := dep.Repository.Probe(ctx, query)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	if resolvable == 0 && acceptZero {
		return true, nil
	}
	return false, nil
}

func buildProbe(dep Dependency, actor Actor, prior map[string]interface{}) map[string]interface{} {
	query := map[string]interface{}{}
	for _, rule := range dep.Rules {
		if len(rule.Sources) == 0 {
			continue
		}
		first, ok := resolveSource(rule.Sources[0], actor, prior)
		if len(rule.Sources) > 1 {
			// all sources must agree, else the dependency is void
			if !ok {
				return nil
			}
			for _, source := range rule.Sources[1:] {
				value, ok := resolveSource(source, actor, prior)
				if !ok || !reflect.DeepEqual(first, value) {
					return nil
				}
			}
		}
		if ok {
			query[rule.Field] = first
		}
	}
	return query
}

func resolveSource(source string, actor Actor, prior map[string]interface{}) (interface{}, bool) {
	if source == SourceCallerIdentity {
		identity, ok := actor.Identity()
		if !ok {
			return nil, false
		}
		return identity, true
	}
	if prior == nil {
		return nil, false
	}
	value, ok := prior[source]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}
