// Command mcalsim boots a board description on the simulated chip, prints
// development error reports as they happen and can bridge one USART to a
// host serial port or the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"mcal-go/bus"
	"mcal-go/det"
	"mcal-go/drivers/port"
	"mcal-go/drivers/systick"
	"mcal-go/drivers/usart"
	"mcal-go/regfile"
	"mcal-go/services/config"
	"mcal-go/services/heartbeat"
	"mcal-go/services/platform"
	"mcal-go/types"
)

type options struct {
	board   string
	dump    bool
	serial  string
	baud    int
	console bool
	usart   int
	refresh bool
	mem     string
	beat    time.Duration
	panel   bool
}

func main() {
	var o options
	flag.StringVar(&o.board, "board", "tm4c123_launchpad", "embedded board name or JSON file ("+strings.Join(config.Boards(), ", ")+")")
	flag.BoolVar(&o.dump, "dump", false, "print the PORT register read-back as JSON lines")
	flag.StringVar(&o.serial, "serial", "", "bridge the USART to this host serial device")
	flag.IntVar(&o.baud, "baud", 9600, "host serial baud rate")
	flag.BoolVar(&o.console, "console", false, "bridge the USART to the terminal")
	flag.IntVar(&o.usart, "usart", 1, "USART instance to bridge (1..3)")
	flag.BoolVar(&o.refresh, "refresh", false, "run PORT RefreshDirection after boot")
	flag.StringVar(&o.mem, "mem", "", "apply the PORT table through this memory device instead of the simulation")
	flag.DurationVar(&o.beat, "heartbeat", 0, "log stack status at this interval while bridging")
	flag.BoolVar(&o.panel, "panel", false, "draw the pin map on the SPI status panel, refreshed every second while bridging")
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.SetPrefix("[mcalsim] ")

	if err := run(o); err != nil {
		log.Fatal(err)
	}
}

func run(o options) error {
	board, err := config.Load(o.board)
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}
	if o.usart < 1 || o.usart > len(usart.Banks) {
		return fmt.Errorf("usart %d out of range", o.usart)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b := bus.NewBus(32)
	conn := b.NewConnection("mcalsim")
	reports := conn.Subscribe(bus.T("det", bus.MultiLevel))
	done := make(chan struct{})
	go func() {
		defer close(done)
		logReports(reports)
	}()
	defer func() {
		conn.Unsubscribe(reports)
		<-done
	}()
	config.Publish(conn, board)

	opts := platform.Options{Conn: conn}
	if o.mem != "" {
		mm, err := regfile.OpenMMIO(o.mem, platform.PortWindows(port.TM4C123())...)
		if err != nil {
			return fmt.Errorf("mmio: %w", err)
		}
		defer mm.Close()
		opts.PortRegs = mm
	}

	id := usart.ID(o.usart - 1)
	var link *bridge
	if o.serial != "" || o.console {
		link, err = openBridge(o.serial, o.baud, o.console)
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		defer link.Close()
		opts.TX = map[usart.ID]io.Writer{id: link}
	}

	st, err := platform.NewHost(board, opts)
	if st != nil {
		defer st.Close()
		conn.Publish(conn.NewMessage(bus.T("config", "board", "state"), st.State(err), true))
	}
	if err != nil {
		return fmt.Errorf("boot %s: %w", board.Name, err)
	}
	log.Printf("booted %s: %d pins, %d usart", board.Name, len(st.DumpPort()), len(board.USART))
	for _, u := range board.USART {
		logRouting(st, u)
	}
	if c := st.SysTick.Calibration(); c.TenMs != 0 {
		log.Printf("systick: 10 ms = %d ticks (skew=%t)", c.TenMs, c.Skew)
	}

	if o.refresh {
		if err := st.Port.RefreshDirection(); err != nil {
			log.Printf("refresh: %v", err)
		}
	}
	if o.dump {
		enc := json.NewEncoder(os.Stdout)
		for _, ps := range st.DumpPort() {
			_ = enc.Encode(ps)
		}
	}
	if o.panel {
		if err := st.RenderPanel(); err != nil {
			return fmt.Errorf("panel: %w", err)
		}
		w, h := st.Panel.Size()
		log.Printf("panel: %dx%d, %d of %d pins shown", w, h, min(len(st.DumpPort()), st.Panel.Capacity()), len(st.DumpPort()))
	}
	if link == nil {
		return nil
	}

	go runSysTick(ctx, st)
	if o.panel {
		go runPanel(ctx, st)
	}
	if o.beat > 0 {
		beats := conn.Subscribe(heartbeat.TopicBeat)
		defer conn.Unsubscribe(beats)
		hb := &heartbeat.Service{Interval: o.beat, Stats: func() (uint32, int) { return st.Ticks(), st.Det.Len() }}
		_ = hb.Start(ctx, conn)
		go logBeats(beats)
	}
	if err := link.Run(ctx, st, id, conn); err != nil {
		log.Printf("bridge: %v", err)
	}
	log.Printf("systick: %d interrupts, usart drops: %d", st.Ticks(), st.USART.Dropped(id))
	return nil
}

// logReports prints det events until the subscription closes.
func logReports(sub *bus.Subscription) {
	lg := det.NewLogger(log.Writer())
	for msg := range sub.Channel() {
		if ev, ok := msg.Payload.(types.DetEvent); ok {
			lg.ReportError(ev.Module, ev.Instance, ev.Service, ev.Error)
		}
	}
}

func logBeats(sub *bus.Subscription) {
	for msg := range sub.Channel() {
		if hb, ok := msg.Payload.(types.Heartbeat); ok {
			log.Printf("heartbeat uptime=%dms ticks=%d reports=%d", hb.UptimeMs, hb.Ticks, hb.Reports)
		}
	}
}

// logRouting prints the functions the mux reports for a USART's pins.
func logRouting(st *platform.Stack, u config.USARTEntry) {
	var parts []string
	for _, name := range []string{u.TX, u.RX} {
		if name == "" {
			continue
		}
		id, err := st.Layout.Parse(name)
		if err != nil {
			continue
		}
		parts = append(parts, name+"="+string(st.Mux(id).Func()))
	}
	if len(parts) > 0 {
		log.Printf("%s: %s", u.ID, strings.Join(parts, " "))
	}
}

// runPanel redraws the panel once a second; an unchanged pin map only
// toggles VCOM.
func runPanel(ctx context.Context, st *platform.Stack) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := st.RenderPanel(); err != nil {
				log.Printf("panel: %v", err)
			}
		}
	}
}

// runSysTick drives the counter at 1 MHz in wall-clock time with a 1 ms
// period, so the interval modes deliver callbacks while the bridge runs.
func runSysTick(ctx context.Context, st *platform.Stack) {
	if st.SysTick.Mode() == systick.BusyWait {
		return
	}
	if err := st.SysTick.StartTimer(ctx, 1); err != nil {
		log.Printf("systick: %v", err)
		return
	}
	defer st.SysTick.StopTimer()
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			st.Tick.Advance(1000)
		}
	}
}
