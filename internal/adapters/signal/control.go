package signal

import "github.com/dkeye/voicechat/internal/core"

func (ctl *SignalWSController) handleHeartbeat(cid core.ConnectionID) {
	ctl.Orch.Heartbeat(cid)
}
