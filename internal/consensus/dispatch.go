package consensus

import "fmt"

// Dispatch decodes an inbound wire message by topic and routes it to the
// matching Handle* method, sending back whatever reply that method
// produces. It is the single entry point internal/transport's Node calls
// for every message it delivers, so the transport layer never needs to
// know this package's wire encoding.
//
// fromPeer is the transport-level sender of a direct (non-gossip) message;
// it is used only to address a SyncResponse back to whoever sent the
// SyncRequest, since SyncRequest itself carries no requester id. Gossip
// topics ignore fromPeer.
func (e *Engine) Dispatch(fromPeer, topic string, data []byte) error {
	switch topic {
	case TopicRequestVote:
		msg, err := decodeRequestVote(data)
		if err != nil {
			return err
		}
		resp, err := e.HandleRequestVote(msg)
		if err != nil {
			return err
		}
		rdata, err := encodeRequestVoteResponse(resp)
		if err != nil {
			return err
		}
		return e.transport.SendTo(msg.CandidateId, TopicRequestVoteResp, rdata)

	case TopicRequestVoteResp:
		resp, err := decodeRequestVoteResponse(data)
		if err != nil {
			return err
		}
		return e.HandleRequestVoteResponse(resp)

	case TopicProposal:
		msg, err := decodeProposal(data)
		if err != nil {
			return err
		}
		_, err = e.HandleProposal(msg)
		return err

	case TopicVote:
		msg, err := decodeVote(data)
		if err != nil {
			return err
		}
		return e.HandleVote(msg)

	case TopicHeartbeat:
		msg, err := decodeHeartbeat(data)
		if err != nil {
			return err
		}
		e.HandleHeartbeat(msg)
		return nil

	case TopicCommit:
		msg, err := decodeCommit(data)
		if err != nil {
			return err
		}
		return e.HandleCommit(msg)

	case TopicSyncRequest:
		req, err := decodeSyncRequest(data)
		if err != nil {
			return err
		}
		resp, err := e.HandleSyncRequest(req)
		if err != nil {
			return err
		}
		rdata, err := encodeSyncResponse(resp)
		if err != nil {
			return err
		}
		if fromPeer == "" {
			return nil
		}
		return e.transport.SendTo(fromPeer, TopicSyncResponse, rdata)

	case TopicSyncResponse:
		resp, err := decodeSyncResponse(data)
		if err != nil {
			return err
		}
		return e.ApplySyncResponse(resp)

	default:
		return fmt.Errorf("consensus: unknown topic %q", topic)
	}
}
