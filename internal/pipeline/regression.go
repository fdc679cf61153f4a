package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/crimson-sun/beacon/internal/model"
)

// detectRegressions reopens fixed stacks when an occurrence lands past the
// fix. For each stack at most one event in the batch becomes the regression
// marker: the earliest qualifying occurrence by date, submission order
// breaking ties. Occurrences that do not get past the fix are stamped as
// known-fixed instead.
func (p *Pipeline) detectRegressions(ctx context.Context, batch []*Context) ([]*Context, error) {
	byStack := make(map[string][]*Context)
	var order []string
	for _, c := range batch {
		if !c.live() || c.Stack == nil || !c.Stack.Fixed || c.IsNew {
			continue
		}
		id := c.Stack.ID
		if _, ok := byStack[id]; !ok {
			order = append(order, id)
		}
		byStack[id] = append(byStack[id], c)
	}

	for _, id := range order {
		group := byStack[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Event.Date.Before(group[j].Event.Date)
		})

		st := group[0].Stack
		reopened := false
		for _, c := range group {
			if reopened {
				continue
			}
			if !exceedsFix(c.Event, st) {
				c.Event.Fixed = true
				continue
			}
			st.MarkNotFixed()
			if err := p.store.SaveStack(ctx, st); err != nil {
				c.SetError(fmt.Errorf("reopen stack: %w", err))
				continue
			}
			slog.Info("stack regressed", "stack", st.ID, "version", c.Event.Version)
			c.IsRegression = true
			reopened = true
		}
	}
	return batch, nil
}

// exceedsFix reports whether an occurrence lands past the stack's fix. An
// unconditional fix is exceeded only by occurrences dated after it. Against a
// version fix, an occurrence with no comparable version is taken to exceed
// it: absence of version information must not suppress a reopen.
func exceedsFix(ev *model.Event, st *model.Stack) bool {
	fixed := canonicalVersion(st.FixedInVersion)
	if fixed == "" {
		return ev.Date.After(st.FixedAt)
	}
	occurred := canonicalVersion(ev.Version)
	if occurred == "" {
		return true
	}
	return semver.Compare(occurred, fixed) > 0
}

// canonicalVersion maps loose version strings ("1.0.1-rc2") onto the
// v-prefixed form the semver package compares; unparseable input maps to
// the empty string.
func canonicalVersion(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return ""
	}
	return s
}
