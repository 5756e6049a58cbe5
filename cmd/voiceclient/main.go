package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/adapters/rtc"
	"github.com/dkeye/voicechat/internal/client/peer"
	"github.com/dkeye/voicechat/internal/client/quality"
	"github.com/dkeye/voicechat/internal/client/signaling"
	"github.com/dkeye/voicechat/internal/config"
	"github.com/dkeye/voicechat/internal/protocol"
)

func main() {
	token := flag.String("token", "", "bearer credential (overrides client.token)")
	say := flag.String("say", "", "message to post after joining the room")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	cc := cfg.Client
	if *token != "" {
		cc.Token = *token
	}

	client, err := signaling.Dial(ctx, cc.ServerURL, cc.Token)
	if err != nil {
		log.Fatal().Err(err).Str("url", cc.ServerURL).Msg("connect")
	}
	defer client.Close()
	go client.Heartbeat(ctx, cc.HeartbeatPeriod)

	engine := quality.NewEngine(cc.SamplePeriod, cc.ForceCooldown)
	go engine.Run(ctx)

	mesh := peer.NewOrchestrator(
		rtc.NewFactory(rtc.DefaultWebRTCConfig(cc.ICEServers)),
		client,
		peer.Config{Backoff: cc.Backoff, NegotiationTimeout: cc.NegotiationLimit},
		peer.WithQuality(engine),
		peer.WithFatalHandler(func(id, name string, err error) {
			log.Error().Err(err).Str("peer", id).Str("name", name).Msg("voice peer unreachable")
		}),
	)
	defer mesh.Leave()

	if err := client.JoinRoom(cc.Room); err != nil {
		log.Fatal().Err(err).Msg("join room")
	}
	if cc.VoiceChannel != "" {
		if err := client.JoinVoice(cc.VoiceChannel); err != nil {
			log.Fatal().Err(err).Msg("join voice")
		}
	}
	if *say != "" {
		if err := client.SendMessage(*say); err != nil {
			log.Warn().Err(err).Msg("send message")
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("leaving")
			_ = client.LeaveVoice()
			return
		case env, ok := <-client.Events():
			if !ok {
				log.Warn().Msg("server closed the connection")
				return
			}
			handled, err := signaling.Dispatch(env, mesh)
			if err != nil {
				log.Warn().Err(err).Str("event", env.Event).Msg("voice event")
			}
			if !handled {
				logEvent(env)
			}
		}
	}
}

func logEvent(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventError, protocol.EventVoiceError:
		log.Warn().Str("event", env.Event).RawJSON("data", env.Data).Msg("server error")
	case protocol.EventHeartbeatAck:
		log.Debug().Msg("heartbeat ack")
	default:
		if len(env.Data) == 0 {
			log.Info().Str("event", env.Event).Msg("event")
			return
		}
		log.Info().Str("event", env.Event).RawJSON("data", env.Data).Msg("event")
	}
}
