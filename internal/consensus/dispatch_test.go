package consensus

import (
	"testing"
	"time"
)

func TestDispatchRoutesRequestVoteAndSendsResponse(t *testing.T) {
	nodeA := newTestNode(t, QuorumPolicy{QuorumFraction: 0.5, MinVoters: 1})
	nodeB := newTestNode(t, QuorumPolicy{QuorumFraction: 0.5, MinVoters: 1})
	weights := Weights{nodeA.kp.Id(): 1, nodeB.kp.Id(): 1}
	nodeA.engine.cfg.Weights = weights
	nodeB.engine.cfg.Weights = weights

	if err := nodeA.engine.startElection(time.Now()); err != nil {
		t.Fatalf("startElection: %v", err)
	}
	msgs := nodeA.transport.drain()
	if len(msgs) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(msgs))
	}

	if err := nodeB.engine.Dispatch(nodeA.kp.Id(), msgs[0].topic, msgs[0].data); err != nil {
		t.Fatalf("Dispatch(RequestVote): %v", err)
	}
	sent := nodeB.transport.sent
	if len(sent) != 1 || sent[0].topic != TopicRequestVoteResp || sent[0].to != nodeA.kp.Id() {
		t.Fatalf("expected B to SendTo A a RequestVoteResp, got %v", sent)
	}

	if err := nodeA.engine.Dispatch(nodeB.kp.Id(), sent[0].topic, sent[0].data); err != nil {
		t.Fatalf("Dispatch(RequestVoteResp): %v", err)
	}
	if nodeA.engine.Role() != Leader {
		t.Fatalf("role after dispatched quorum response = %v, want Leader", nodeA.engine.Role())
	}
}

func TestDispatchUnknownTopic(t *testing.T) {
	node := newTestNode(t, QuorumPolicy{QuorumFraction: 0.5, MinVoters: 1})
	if err := node.engine.Dispatch("", "atlasdb/consensus/bogus", nil); err == nil {
		t.Fatalf("expected an error for an unknown topic")
	}
}
