package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pion/webrtc/v3"
)

// gatherTimeout bounds ICE candidate gathering before the answer is returned.
const gatherTimeout = 10 * time.Second

// sdpPayload is the JSON shape exchanged with the browser on /webrtc/offer.
type sdpPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// handleOffer accepts a WebRTC SDP offer and answers it with a receive-only
// audio transceiver plus an echoing data channel for connectivity checks.
// Incoming audio frames are drained; evaluation consumes recorded uploads,
// not the live stream.
func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var req sdpPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SDP == "" || req.Type == "" {
		respondError(w, http.StatusBadRequest, "missing sdp/type")
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		s.log.Error("server: creating peer connection failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not create peer connection")
		return
	}
	s.trackPeer(pc)

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				dc.SendText(string(msg.Data))
			} else {
				dc.Send(msg.Data)
			}
		})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.untrackPeer(pc)
		}
	})

	offer := webrtc.SessionDescription{Type: webrtc.NewSDPType(req.Type), SDP: req.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		s.closePeer(pc)
		respondError(w, http.StatusBadRequest, "invalid sdp offer")
		return
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		s.closePeer(pc)
		s.log.Error("server: adding audio transceiver failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not negotiate audio")
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.closePeer(pc)
		s.log.Error("server: creating answer failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not create answer")
		return
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		s.closePeer(pc)
		s.log.Error("server: setting local description failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not apply answer")
		return
	}
	select {
	case <-gathered:
	case <-time.After(gatherTimeout):
		// Answer with whatever candidates were gathered so far.
	case <-r.Context().Done():
		s.closePeer(pc)
		return
	}

	local := pc.LocalDescription()
	respondJSON(w, http.StatusOK, sdpPayload{SDP: local.SDP, Type: local.Type.String()})
}

func (s *Server) trackPeer(pc *webrtc.PeerConnection) {
	s.mu.Lock()
	s.peers[pc] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackPeer(pc *webrtc.PeerConnection) {
	s.mu.Lock()
	delete(s.peers, pc)
	s.mu.Unlock()
}

func (s *Server) closePeer(pc *webrtc.PeerConnection) {
	pc.Close()
	s.untrackPeer(pc)
}
