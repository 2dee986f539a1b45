// Package conversation implements open-ended, turn-based discussions among
// multiple agents coordinated by a transient supervisor. The engine sanitizes
// the incoming query, lets participants take turns round-robin, stops on an
// explicit completion signal, a repetition loop or a turn cap, and has the
// supervisor synthesize one final answer from the discussion.
package conversation
