package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"thermavip/protocol"
	"thermavip/vip"
	"thermavip/vip/archive"
	"thermavip/vip/device"
	"thermavip/vip/pool"
)

// ErrProcessorStopped is returned by SendCommand once the processor is stopped
var ErrProcessorStopped = errors.New("command processor stopped")

// Target is what the console drives
type Target interface {
	Pool() *pool.Pool
	SaveState(filename string, format archive.Format) error
	Summary() string
}

// CommandProcessor runs the console commands one at a time
type CommandProcessor struct {
	target    Target
	stateFile string
	out       io.Writer
	cmdChan   chan *Command
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewCommandProcessor creates a processor for target. save without a
// filename writes stateFile.
func NewCommandProcessor(ctx context.Context, target Target, stateFile string) *CommandProcessor {
	processorCtx, cancel := context.WithCancel(ctx)
	return &CommandProcessor{
		target:    target,
		stateFile: stateFile,
		out:       os.Stdout,
		cmdChan:   make(chan *Command),
		done:      make(chan struct{}),
		ctx:       processorCtx,
		cancel:    cancel,
	}
}

// SetOutput redirects the command output. It must be called before Start.
func (p *CommandProcessor) SetOutput(w io.Writer) {
	p.out = w
}

func (p *CommandProcessor) Start() {
	go p.processCommands()
}

// Stop cancels the processor and waits for the running command
func (p *CommandProcessor) Stop() {
	p.cancel()
	<-p.done
}

// SendCommand runs cmd and returns its error
func (p *CommandProcessor) SendCommand(cmd *Command) error {
	select {
	case p.cmdChan <- cmd:
	case <-p.done:
		return ErrProcessorStopped
	}
	<-cmd.Done
	return cmd.Error
}

func (p *CommandProcessor) processCommands() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case cmd := <-p.cmdChan:
			cmd.Error = p.execute(cmd)
			close(cmd.Done)
			if cmd.Type == CmdQuit {
				p.cancel()
			}
		}
	}
}

func (p *CommandProcessor) execute(cmd *Command) error {
	pl := p.target.Pool()
	switch cmd.Type {
	case CmdQuit:
		return nil
	case CmdHelp:
		PrintUsage(p.out, cmd.Topic)
		return nil
	case CmdPlay:
		if cmd.Backward {
			return pl.PlayBackward()
		}
		return pl.PlayForward()
	case CmdStop:
		pl.Stop()
		return nil
	case CmdSeek:
		return p.moved(pl.SeekTime(cmd.Time))
	case CmdPos:
		return p.moved(pl.SeekPos(cmd.Pos))
	case CmdNext:
		return p.moved(pl.Next())
	case CmdPrevious:
		return p.moved(pl.Previous())
	case CmdFirst:
		return p.moved(pl.First())
	case CmdLast:
		return p.moved(pl.Last())
	case CmdSpeed:
		return pl.SetPlaySpeed(cmd.Speed)
	case CmdRepeat:
		pl.SetRepeat(cmd.On)
		return nil
	case CmdLimits:
		if cmd.On {
			pl.SetStopTimes(cmd.Begin, cmd.End)
		}
		pl.SetTimeLimitsEnabled(cmd.On)
		fmt.Fprintf(p.out, "limits: %s\n", formatLimits(pl))
		return nil
	case CmdMiss:
		pl.SetMissFramesEnabled(cmd.On)
		return nil
	case CmdStream:
		return pl.SetStreamingEnabled(cmd.On)
	case CmdDevices:
		return p.processDevicesCommand(cmd)
	case CmdEnable, CmdDisable:
		return p.processEnableCommand(cmd)
	case CmdInfo:
		fmt.Fprintln(p.out, p.target.Summary())
		fmt.Fprintf(p.out, "  playing %v, streaming %v, miss frames %v, max fps %d, limits %s\n",
			pl.IsPlaying(), pl.IsStreamingEnabled(), pl.MissFramesEnabled(), pl.ReadMaxFPS(), formatLimits(pl))
		return nil
	case CmdSave:
		return p.processSaveCommand(cmd)
	}
	return fmt.Errorf("unhandled command %d", cmd.Type)
}

// moved prints the new time of the pool after a successful move
func (p *CommandProcessor) moved(err error) error {
	if err != nil {
		return err
	}
	pl := p.target.Pool()
	fmt.Fprintf(p.out, "time %s", formatTime(pl.Time()))
	if pos := pl.TimeToPos(pl.Time()); pos != vip.InvalidPosition {
		fmt.Fprintf(p.out, " (pos %d)", pos)
	}
	fmt.Fprintln(p.out)
	return nil
}

func formatTime(t int64) string {
	if t == vip.InvalidTime {
		return "-"
	}
	return fmt.Sprint(t)
}

func formatLimits(pl *pool.Pool) string {
	if !pl.TestMode(pool.UseTimeLimits) {
		return "off"
	}
	return formatTime(pl.StopBeginTime()) + "-" + formatTime(pl.StopEndTime())
}

func (p *CommandProcessor) members(names []string) ([]*device.Device, error) {
	pl := p.target.Pool()
	if len(names) == 0 {
		return pl.Devices(), nil
	}
	devices := make([]*device.Device, 0, len(names))
	for _, name := range names {
		d, ok := pl.Device(name)
		if !ok {
			return nil, fmt.Errorf("no device named %s", name)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (p *CommandProcessor) processDevicesCommand(cmd *Command) error {
	devices, err := p.members(cmd.Names)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(p.out, "no device")
		return nil
	}
	for _, d := range devices {
		info := protocol.DeviceToProtocol(d)
		flags := []string{info.Type, info.OpenMode}
		if !info.Enabled {
			flags = append(flags, "disabled")
		}
		if info.Streaming {
			flags = append(flags, "streaming "+info.Status)
		}
		fmt.Fprintf(p.out, "%s (%s) %s\n", info.Name, info.Kind, strings.Join(flags, ", "))
		if len(info.Window) > 0 {
			fmt.Fprintf(p.out, "  window %v, %d samples\n", info.Window, info.Size)
		}
		if info.Time != nil {
			fmt.Fprintf(p.out, "  time %d\n", *info.Time)
		}
		if info.Error != "" {
			fmt.Fprintf(p.out, "  error: %s\n", info.Error)
		}
	}
	return nil
}

func (p *CommandProcessor) processEnableCommand(cmd *Command) error {
	devices, err := p.members(cmd.Names)
	if err != nil {
		return err
	}
	enabled := cmd.Type == CmdEnable
	for _, d := range devices {
		d.SetEnabled(enabled)
	}
	return nil
}

func (p *CommandProcessor) processSaveCommand(cmd *Command) error {
	filename := cmd.Filename
	if filename == "" {
		filename = p.stateFile
	}
	if filename == "" {
		return errors.New("save: no state file configured")
	}
	if err := p.target.SaveState(filename, archive.FormatFor(filename)); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "state saved to %s\n", filename)
	return nil
}
