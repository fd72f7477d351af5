package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

// DiscordDialer connects through an existing discordgo session.
type DiscordDialer struct {
	Session *discordgo.Session
}

func (d *DiscordDialer) Connect(ctx context.Context, guildID, channelID string) (Connection, error) {
	vc, err := d.Session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, &ConnectError{GuildID: guildID, ChannelID: channelID, Err: err}
	}

	// This prevents the panic in Kill() when channels are closed
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}

	conn := &discordConnection{
		vc:        vc,
		guildID:   guildID,
		channelID: channelID,
	}
	conn.gainBits.Store(math.Float64bits(1.0))
	return conn, nil
}

type discordConnection struct {
	guildID   string
	channelID string

	gainBits atomic.Uint64
	paused   atomic.Bool
	pos48    atomic.Int64 // samples delivered in the current session

	mu   sync.Mutex
	vc   *discordgo.VoiceConnection
	sess *playSession
}

type playSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	finishOnce sync.Once
	onFinished func(err error)
}

func (s *playSession) finish(err error) {
	if s.onFinished == nil {
		return
	}
	s.finishOnce.Do(func() { s.onFinished(err) })
}

func (c *discordConnection) ChannelID() string { return c.channelID }

func (c *discordConnection) SetVolume(v float64) {
	c.gainBits.Store(math.Float64bits(v))
}

func (c *discordConnection) volume() float64 {
	return math.Float64frombits(c.gainBits.Load())
}

func (c *discordConnection) Position() time.Duration {
	return time.Duration(c.pos48.Load()) * time.Second / sampleRate
}

func (c *discordConnection) Play(ctx context.Context, file string, opts PlayOptions) error {
	c.mu.Lock()
	vc := c.vc
	if vc == nil {
		c.mu.Unlock()
		return errors.New("not connected")
	}
	c.stopSessionLocked()

	if opts.Volume > 0 {
		c.gainBits.Store(math.Float64bits(opts.Volume))
	}

	playCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(playCtx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", file,
		"-vn",
		"-ac", fmt.Sprint(channels),
		"-ar", fmt.Sprint(sampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		c.mu.Unlock()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		c.mu.Unlock()
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		cancel()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		c.mu.Unlock()
		return fmt.Errorf("opus encoder: %w", err)
	}
	enc.SetBitrate(160000)

	sess := &playSession{
		ctx:        playCtx,
		cancel:     cancel,
		doneCh:     make(chan struct{}),
		onFinished: opts.OnFinished,
	}
	c.sess = sess
	c.paused.Store(false)
	c.pos48.Store(0)
	c.mu.Unlock()

	go c.sendLoop(vc, sess, cmd, stdout, enc)
	return nil
}

func (c *discordConnection) sendLoop(
	vc *discordgo.VoiceConnection,
	sess *playSession,
	cmd *exec.Cmd,
	stdout io.ReadCloser,
	enc *gopus.Encoder,
) {
	var playErr error
	defer func() {
		sess.cancel()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		close(sess.doneCh)
		sess.finish(playErr)
	}()

	// wait for voice ready
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !vc.Ready {
		select {
		case <-sess.ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !vc.Ready {
		playErr = errors.New("voice connection not ready")
		return
	}

	_ = vc.Speaking(true)
	defer vc.Speaking(false)

	src := newGainReader(stdout, c.volume)
	samples := make([]int16, frameSize*channels)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.paused.Load() {
			select {
			case <-sess.ctx.Done():
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}

		if err := src.ReadFrame(samples); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return // natural finish
			}
			playErr = fmt.Errorf("read pcm: %w", err)
			return
		}

		pkt, err := enc.Encode(samples, frameSize, 4000)
		if err != nil {
			playErr = fmt.Errorf("opus encode: %w", err)
			return
		}

		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case <-sess.ctx.Done():
			return
		case vc.OpusSend <- pkt:
			c.pos48.Add(frameSize)
		case <-time.After(200 * time.Millisecond):
			slog.Debug("opus send stalled, dropping frame", "guildID", c.guildID)
		}
	}
}

func (c *discordConnection) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return errors.New("nothing playing")
	}
	c.paused.Store(true)
	if c.vc != nil {
		_ = c.vc.Speaking(false)
	}
	return nil
}

func (c *discordConnection) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return errors.New("nothing playing")
	}
	c.paused.Store(false)
	if c.vc != nil {
		_ = c.vc.Speaking(true)
	}
	return nil
}

func (c *discordConnection) Stop() {
	c.mu.Lock()
	c.stopSessionLocked()
	c.mu.Unlock()
}

// stopSessionLocked ends the current session. Caller must hold c.mu; the lock
// is released while waiting for the sender goroutine to exit.
func (c *discordConnection) stopSessionLocked() {
	if c.sess == nil {
		return
	}
	sess := c.sess
	c.sess = nil

	sess.cancel()

	done := sess.doneCh
	c.mu.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	c.mu.Lock()
}

func (c *discordConnection) Disconnect() error {
	c.mu.Lock()
	c.stopSessionLocked()
	vc := c.vc
	c.vc = nil
	c.mu.Unlock()

	return safeDisconnect(vc, c.guildID)
}

// safeDisconnect disconnects a voice connection with proper cleanup.
func safeDisconnect(vc *discordgo.VoiceConnection, guildID string) error {
	if vc == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice disconnect panic recovered", "panic", r, "guildID", guildID)
		}
	}()

	// Ensure channels exist before disconnecting; prevents a panic in Kill()
	// when it tries to close nil channels.
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}

	_ = vc.Speaking(false)

	// small delay to let pending operations complete
	time.Sleep(150 * time.Millisecond)

	return vc.Disconnect()
}
