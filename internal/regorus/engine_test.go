package regorus_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/dantte-lp/regorus/internal/regorus"
)

// -------------------------------------------------------------------------
// Test Helpers — Engine
// -------------------------------------------------------------------------

// startEngine creates an engine over ifaces and runs its dispatcher until
// the test ends. Must be called inside a synctest bubble.
func startEngine(t *testing.T, opts []regorus.EngineOption, ifaces ...regorus.Interface) *regorus.Engine {
	t.Helper()

	eng := regorus.NewEngine(newMockResolver(ifaces...), slog.New(slog.DiscardHandler), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() {
		if err := eng.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	t.Cleanup(func() {
		cancel()
		wg.Wait()
		eng.Close()
	})
	return eng
}

func mustCard(t *testing.T, eng *regorus.Engine, name string) regorus.CardSnapshot {
	t.Helper()

	snap, ok := eng.Card(name)
	if !ok {
		t.Fatalf("Card(%s): not found", name)
	}
	return snap
}

// -------------------------------------------------------------------------
// Probe request
// -------------------------------------------------------------------------

// TestProbeNewCard verifies that the first probe request creates a card,
// answers found=false/Detecting and sends one Ping.
func TestProbeNewCard(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		res, err := eng.Probe(context.Background(), "eth0")
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if res.Found || res.Status != regorus.StatusDetecting {
			t.Errorf("Probe = %+v, want {Found:false Status:Detecting}", res)
		}

		synctest.Wait()

		frames := eth0.sent(t)
		if len(frames) != 1 {
			t.Fatalf("frames sent = %d, want 1", len(frames))
		}
		if frames[0].Header.Op != regorus.OpPing {
			t.Errorf("op = %s, want Ping", frames[0].Header.Op)
		}
		if frames[0].Header.Info != 1 {
			t.Errorf("info = %d, want attempt 1", frames[0].Header.Info)
		}

		snap := mustCard(t, eng, "eth0")
		if snap.RetriesLeft != 2 {
			t.Errorf("RetriesLeft = %d, want 2", snap.RetriesLeft)
		}
		if !snap.TimerArmed {
			t.Error("TimerArmed = false, want true")
		}
		// Registry slot plus armed timer.
		if snap.Refs != 2 {
			t.Errorf("Refs = %d, want 2", snap.Refs)
		}
	})
}

// TestProbeIdempotent verifies that repeated probes for one name return
// the existing card's status and never create a second card.
func TestProbeIdempotent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("first Probe: %v", err)
		}
		synctest.Wait()

		res, err := eng.Probe(context.Background(), "eth0")
		if err != nil {
			t.Fatalf("second Probe: %v", err)
		}
		if !res.Found || res.Status != regorus.StatusDetecting {
			t.Errorf("second Probe = %+v, want {Found:true Status:Detecting}", res)
		}

		eng.Receive(eth0, peerFrame(t, regorus.OpPong, 1))
		synctest.Wait()

		res, err = eng.Probe(context.Background(), "eth0")
		if err != nil {
			t.Fatalf("third Probe: %v", err)
		}
		if !res.Found || res.Status != regorus.StatusDetected {
			t.Errorf("third Probe = %+v, want {Found:true Status:Detected}", res)
		}

		if got := len(eng.Cards()); got != 1 {
			t.Errorf("cards = %d, want 1", got)
		}
		// Only the first probe sends a Ping before the Pong arrives.
		if got := len(eth0.sent(t)); got != 1 {
			t.Errorf("frames sent = %d, want 1", got)
		}
	})
}

// TestProbeUnknownInterface verifies that probing a name the host does not
// have fails and creates no card.
func TestProbeUnknownInterface(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eng := startEngine(t, nil, newMockIface("eth0", 1))

		_, err := eng.Probe(context.Background(), "wlan7")
		if !errors.Is(err, regorus.ErrUnknownInterface) {
			t.Fatalf("Probe error = %v, want ErrUnknownInterface", err)
		}
		if _, ok := eng.StatusOf("wlan7"); ok {
			t.Error("card created for unknown interface")
		}
	})
}

func TestProbeInvalidName(t *testing.T) {
	t.Parallel()

	eng := regorus.NewEngine(newMockResolver(), slog.New(slog.DiscardHandler))
	defer eng.Close()

	for _, name := range []string{"", "this-name-is-too-long0"} {
		if _, err := eng.Probe(context.Background(), name); !errors.Is(err, regorus.ErrInvalidInterfaceName) {
			t.Errorf("Probe(%q) error = %v, want ErrInvalidInterfaceName", name, err)
		}
	}
}

// -------------------------------------------------------------------------
// Retry chain
// -------------------------------------------------------------------------

// TestRetryBudgetExhaustion verifies that an unanswered card sends exactly
// three Pings one interval apart, then stops retrying while staying
// Detecting.
func TestRetryBudgetExhaustion(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		synctest.Wait()
		if got := len(eth0.sent(t)); got != 1 {
			t.Fatalf("frames after probe = %d, want 1", got)
		}

		time.Sleep(1500 * time.Millisecond)
		synctest.Wait()
		if got := len(eth0.sent(t)); got != 2 {
			t.Fatalf("frames at t=1.5s = %d, want 2", got)
		}

		time.Sleep(time.Second)
		synctest.Wait()
		if got := len(eth0.sent(t)); got != 3 {
			t.Fatalf("frames at t=2.5s = %d, want 3", got)
		}

		time.Sleep(time.Second)
		synctest.Wait()

		frames := eth0.sent(t)
		if len(frames) != 3 {
			t.Fatalf("frames at t=3.5s = %d, want 3", len(frames))
		}
		for i, f := range frames {
			if f.Header.Info != uint32(i+1) {
				t.Errorf("frame %d info = %d, want %d", i, f.Header.Info, i+1)
			}
		}

		snap := mustCard(t, eng, "eth0")
		if snap.Status != regorus.StatusDetecting {
			t.Errorf("Status = %s, want Detecting", snap.Status)
		}
		if snap.RetriesLeft != 0 {
			t.Errorf("RetriesLeft = %d, want 0", snap.RetriesLeft)
		}
		if !snap.RetriesExhausted {
			t.Error("RetriesExhausted = false, want true")
		}
		if snap.TimerArmed {
			t.Error("TimerArmed = true, want false")
		}
		if snap.Refs != 1 {
			t.Errorf("Refs = %d, want 1", snap.Refs)
		}

		// Nothing further happens.
		time.Sleep(10 * time.Second)
		synctest.Wait()
		if got := len(eth0.sent(t)); got != 3 {
			t.Errorf("frames at t=13.5s = %d, want 3", got)
		}
	})
}

// TestProbeInterfaceNotRunning verifies that a down device consumes budget
// without transmitting.
func TestProbeInterfaceNotRunning(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eth0.running.Store(false)
		eng := startEngine(t, nil, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		time.Sleep(5 * time.Second)
		synctest.Wait()

		if got := len(eth0.sent(t)); got != 0 {
			t.Errorf("frames sent = %d, want 0", got)
		}
		snap := mustCard(t, eng, "eth0")
		if snap.RetriesLeft != 0 || !snap.RetriesExhausted {
			t.Errorf("RetriesLeft = %d, RetriesExhausted = %v, want 0, true",
				snap.RetriesLeft, snap.RetriesExhausted)
		}
		if snap.LinkUp {
			t.Error("LinkUp = true, want false")
		}
	})
}

// -------------------------------------------------------------------------
// Inbound frames
// -------------------------------------------------------------------------

// TestProbeReceivedDetectsCard verifies that a peer's Ping is answered
// with exactly one Pong echoing its info, the card becomes Detected and
// the retry timer is stopped.
func TestProbeReceivedDetectsCard(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		synctest.Wait()

		eng.Receive(eth0, peerFrame(t, regorus.OpPing, 0x0000beef))
		synctest.Wait()

		frames := eth0.sent(t)
		if len(frames) != 2 {
			t.Fatalf("frames sent = %d, want 2 (Ping, Pong)", len(frames))
		}
		if frames[1].Header.Op != regorus.OpPong {
			t.Errorf("second frame op = %s, want Pong", frames[1].Header.Op)
		}
		if frames[1].Header.Info != 0x0000beef {
			t.Errorf("Pong info = 0x%x, want 0xbeef", frames[1].Header.Info)
		}

		snap := mustCard(t, eng, "eth0")
		if snap.Status != regorus.StatusDetected {
			t.Errorf("Status = %s, want Detected", snap.Status)
		}
		if snap.TimerArmed {
			t.Error("TimerArmed = true, want false")
		}
		if snap.Refs != 1 {
			t.Errorf("Refs = %d, want 1", snap.Refs)
		}
		if snap.DetectedAt.IsZero() {
			t.Error("DetectedAt is zero")
		}

		// Retries stop after detection.
		time.Sleep(5 * time.Second)
		synctest.Wait()
		if got := len(eth0.sent(t)); got != 2 {
			t.Errorf("frames after 5s = %d, want 2", got)
		}
	})
}

// TestAckReceivedDetectsCard verifies that a Pong confirms the card and
// sends nothing back.
func TestAckReceivedDetectsCard(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		synctest.Wait()

		eng.Receive(eth0, peerFrame(t, regorus.OpPong, 1))
		synctest.Wait()

		if got := len(eth0.sent(t)); got != 1 {
			t.Errorf("frames sent = %d, want 1", got)
		}
		snap := mustCard(t, eng, "eth0")
		if snap.Status != regorus.StatusDetected {
			t.Errorf("Status = %s, want Detected", snap.Status)
		}
		if snap.Confirmations != 1 {
			t.Errorf("Confirmations = %d, want 1", snap.Confirmations)
		}
	})
}

// TestProbeReceivedWithoutCard verifies that a Ping on an interface with
// no card is still answered but creates no card.
func TestProbeReceivedWithoutCard(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth1 := newMockIface("eth1", 2)
		eng := startEngine(t, nil, eth1)

		eng.Receive(eth1, peerFrame(t, regorus.OpPing, 9))
		synctest.Wait()

		frames := eth1.sent(t)
		if len(frames) != 1 || frames[0].Header.Op != regorus.OpPong {
			t.Fatalf("frames = %+v, want one Pong", frames)
		}
		if got := len(eng.Cards()); got != 0 {
			t.Errorf("cards = %d, want 0", got)
		}
	})
}

// TestReceiveDropsFrames verifies that malformed, foreign, self-sent and
// reserved-op frames never reach a handler.
func TestReceiveDropsFrames(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		own, err := regorus.EncodeFrame(eth0.mac, regorus.EtherType, regorus.Header{Op: regorus.OpPing})
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		foreign, err := regorus.EncodeFrame(
			[]byte{0x02, 9, 9, 9, 9, 9}, 0x88B6, regorus.Header{Op: regorus.OpPing})
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		short := peerFrame(t, regorus.OpPing, 0)[:regorus.EthernetHeaderSize+4]

		for _, frame := range [][]byte{
			own,
			foreign,
			short,
			peerFrame(t, regorus.OpReq, 1),
			peerFrame(t, regorus.OpRep, 1),
			peerFrame(t, regorus.Op(42), 1),
		} {
			eng.Receive(eth0, frame)
		}
		synctest.Wait()

		if got := len(eth0.sent(t)); got != 0 {
			t.Errorf("frames sent = %d, want 0", got)
		}
		if got := eng.Dispatcher().Processed(); got != 0 {
			t.Errorf("work processed = %d, want 0", got)
		}
	})
}

// -------------------------------------------------------------------------
// Notifications and lifecycle
// -------------------------------------------------------------------------

func TestSubscribeReceivesDetection(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		changes, cancel := eng.Subscribe()
		defer cancel()

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		eng.Receive(eth0, peerFrame(t, regorus.OpPing, 1))
		synctest.Wait()

		select {
		case cc := <-changes:
			if cc.Name != "eth0" {
				t.Errorf("Name = %s, want eth0", cc.Name)
			}
			if cc.OldStatus != regorus.StatusDetecting || cc.NewStatus != regorus.StatusDetected {
				t.Errorf("transition = %s -> %s, want Detecting -> Detected", cc.OldStatus, cc.NewStatus)
			}
			if cc.Event != regorus.EventProbeReceived {
				t.Errorf("Event = %s, want ProbeReceived", cc.Event)
			}
		default:
			t.Fatal("no card change delivered")
		}

		// Self-loops publish nothing.
		eng.Receive(eth0, peerFrame(t, regorus.OpPong, 1))
		synctest.Wait()
		select {
		case cc := <-changes:
			t.Errorf("unexpected change %+v", cc)
		default:
		}
	})
}

func TestReconcileProbes(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eng := startEngine(t, nil, newMockIface("eth0", 1), newMockIface("eth1", 2))

		created, err := eng.ReconcileProbes(context.Background(), []string{"eth0", "eth1", "eth9"})
		if created != 2 {
			t.Errorf("created = %d, want 2", created)
		}
		if !errors.Is(err, regorus.ErrUnknownInterface) {
			t.Errorf("error = %v, want ErrUnknownInterface", err)
		}

		created, err = eng.ReconcileProbes(context.Background(), []string{"eth0"})
		if err != nil {
			t.Fatalf("second ReconcileProbes: %v", err)
		}
		if created != 0 {
			t.Errorf("second created = %d, want 0", created)
		}
		if got := len(eng.Cards()); got != 2 {
			t.Errorf("cards = %d, want 2", got)
		}
		synctest.Wait()
	})
}

func TestLinkChanged(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		synctest.Wait()

		eng.LinkChanged("eth0", false)
		if mustCard(t, eng, "eth0").LinkUp {
			t.Error("LinkUp = true after link down")
		}
		eng.LinkChanged("eth0", true)
		if !mustCard(t, eng, "eth0").LinkUp {
			t.Error("LinkUp = false after link up")
		}

		// Unknown names are ignored.
		eng.LinkChanged("eth5", false)
	})
}

func TestCloseRejectsProbes(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, nil, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		synctest.Wait()

		changes, _ := eng.Subscribe()
		eng.Close()

		if _, ok := <-changes; ok {
			t.Error("watcher channel still open after Close")
		}
		if mustCard(t, eng, "eth0").TimerArmed {
			t.Error("TimerArmed = true after Close")
		}
		if _, err := eng.Probe(context.Background(), "eth1"); !errors.Is(err, regorus.ErrEngineClosed) {
			t.Errorf("Probe after Close error = %v, want ErrEngineClosed", err)
		}
	})
}

func TestEngineOptions(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		eth0 := newMockIface("eth0", 1)
		eng := startEngine(t, []regorus.EngineOption{
			regorus.WithRetryBudget(5),
			regorus.WithRetryInterval(200 * time.Millisecond),
		}, eth0)

		if _, err := eng.Probe(context.Background(), "eth0"); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		time.Sleep(time.Second + 100*time.Millisecond)
		synctest.Wait()

		if got := len(eth0.sent(t)); got != 5 {
			t.Errorf("frames sent = %d, want 5", got)
		}
		if eng.EtherType() != regorus.EtherType {
			t.Errorf("EtherType = 0x%04x, want 0x%04x", eng.EtherType(), regorus.EtherType)
		}
	})
}
