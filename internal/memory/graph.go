package memory

// Triple is one edge in the session knowledge graph. Edges are derived
// from episodes as they are persisted, so the graph is always a
// projection of the episodic log and never a second source of truth.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// triplesFrom derives graph edges from an episode. Kinds without a
// graph projection contribute nothing.
func triplesFrom(ep Episode) []Triple {
	str := func(key string) string {
		v, _ := ep.Payload[key].(string)
		return v
	}

	switch ep.Kind {
	case KindPriorityDecision:
		action := str("action")
		if action == "" {
			return nil
		}
		out := []Triple{{Subject: ep.SessionID, Predicate: "prioritized", Object: action}}
		if rank := str("rank"); rank != "" {
			out = append(out, Triple{Subject: action, Predicate: "ranked", Object: rank})
		}
		return out
	case KindSessionSummary:
		phase := str("phase_reached")
		if phase == "" {
			return nil
		}
		return []Triple{{Subject: ep.SessionID, Predicate: "reached_phase", Object: phase}}
	case KindAbandonment:
		phase := str("phase")
		if phase == "" {
			return nil
		}
		return []Triple{{Subject: ep.SessionID, Predicate: "abandoned_in", Object: phase}}
	}
	return nil
}
