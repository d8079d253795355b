package bridge

import (
	"context"
	"strings"
	"testing"

	"github.com/ajur/huddlelight/testutil"
)

func TestLights(t *testing.T) {
	mb := testutil.NewMockBridge("1", "2", "7")
	defer mb.Close()

	c := NewClient(mb.Address(), testutil.MockToken)
	lights, err := c.Lights(context.Background())
	if err != nil {
		t.Fatalf("Lights: %v", err)
	}

	if len(lights) != 3 {
		t.Fatalf("got %d lights, want 3", len(lights))
	}
	if lights["7"].Name != "Light 7" {
		t.Errorf("light 7 name = %q", lights["7"].Name)
	}
}

func TestLightsBadToken(t *testing.T) {
	mb := testutil.NewMockBridge("1")
	defer mb.Close()

	c := NewClient(mb.Address(), "wrong-token")
	if _, err := c.Lights(context.Background()); err == nil {
		t.Fatal("expected error for wrong credential")
	}
}

func TestLightsBridgeDown(t *testing.T) {
	mb := testutil.NewMockBridge("1")
	defer mb.Close()
	mb.SetDown(true)

	c := NewClient(mb.Address(), testutil.MockToken)
	if _, err := c.Lights(context.Background()); err == nil {
		t.Fatal("expected error while bridge is down")
	}
}

func TestLightsUnreachableHost(t *testing.T) {
	// Reserved TEST-NET address, nothing listens there.
	c := NewClient("192.0.2.1:1", testutil.MockToken)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Lights(ctx); err == nil {
		t.Fatal("expected error for unreachable bridge")
	}
}

func TestSetState(t *testing.T) {
	mb := testutil.NewMockBridge("3")
	defer mb.Close()

	c := NewClient(mb.Address(), testutil.MockToken)

	on := true
	bri := uint8(254)
	hue := uint16(0)
	sat := uint8(254)
	err := c.SetState(context.Background(), "3", LightState{On: &on, Bri: &bri, Hue: &hue, Sat: &sat})
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}

	puts := mb.PutsFor("3")
	if len(puts) != 1 {
		t.Fatalf("got %d state changes, want 1", len(puts))
	}
	body := puts[0].Body
	if body["on"] != true {
		t.Errorf("on = %v", body["on"])
	}
	if body["bri"] != float64(254) || body["hue"] != float64(0) || body["sat"] != float64(254) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestSetStateOmitsUnsetFields(t *testing.T) {
	mb := testutil.NewMockBridge("3")
	defer mb.Close()

	c := NewClient(mb.Address(), testutil.MockToken)

	off := false
	if err := c.SetState(context.Background(), "3", LightState{On: &off}); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	body := mb.PutsFor("3")[0].Body
	if len(body) != 1 {
		t.Errorf("unset fields leaked into request body: %v", body)
	}
}

func TestSetStateFailure(t *testing.T) {
	mb := testutil.NewMockBridge("3")
	defer mb.Close()
	mb.FailLight("3")

	c := NewClient(mb.Address(), testutil.MockToken)

	on := true
	err := c.SetState(context.Background(), "3", LightState{On: &on})
	if err == nil {
		t.Fatal("expected error for failing light")
	}
	if !strings.Contains(err.Error(), "light 3") {
		t.Errorf("error %q should identify the light", err)
	}
}

func TestSetStateUnknownLight(t *testing.T) {
	mb := testutil.NewMockBridge("1")
	defer mb.Close()

	c := NewClient(mb.Address(), testutil.MockToken)
	on := true
	if err := c.SetState(context.Background(), "99", LightState{On: &on}); err == nil {
		t.Fatal("expected error for unknown light id")
	}
}
