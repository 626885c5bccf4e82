package main

import (
	"fmt"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/aerocore/aerocore/iccache"
	"github.com/aerocore/aerocore/icstub"
	"github.com/aerocore/aerocore/object"
)

var runCommand = cli.Command{
	Name:  "run",
	Usage: "run the end-to-end IC miss/hit, megamorphic transition, and GC sweep scenario",
	Action: func(ctx *cli.Context) error {
		return runScenario(ctx.GlobalString(configFileFlag.Name))
	},
}

// demoObject is a minimal object.Object used only to drive the IC manager
// through its state machine from the CLI; it is not part of the engine.
type demoObject struct {
	shapeID uint64
	inline  [8]uint64
}

func (o *demoObject) ShapeID() uint64                     { return o.shapeID }
func (o *demoObject) InlineSlot(offset uint32) uint64     { return o.inline[offset/object.InlineSlotSize] }
func (o *demoObject) SetInlineSlot(offset uint32, v uint64) { o.inline[offset/object.InlineSlotSize] = v }
func (o *demoObject) OutOfLineSlots() []uint64            { return nil }
func (o *demoObject) Prototype() object.Object            { return nil }

// demoResolver resolves "x" to inline slot 0 on any shape, and treats every
// other property/method as unresolved, just enough to exercise a miss ->
// Mono -> Poly -> Mega progression as runScenario feeds it more shapes.
type demoResolver struct{}

func (demoResolver) ResolveProperty(obj object.Object, prop string) (iccache.PropertyEntry, uint64, bool) {
	if prop != "x" {
		return iccache.PropertyEntry{}, 0, false
	}
	return iccache.PropertyEntry{ShapeID: obj.ShapeID(), SlotOffset: 0, Inline: true}, obj.InlineSlot(0), true
}

func (demoResolver) ResolveMethod(obj object.Object, method string) (iccache.MethodEntry, bool) {
	return iccache.MethodEntry{}, false
}

func runScenario(cfgPath string) error {
	g, err := newDemoGC(cfgPath)
	if err != nil {
		return err
	}

	a := newArchForHost()
	stubs := icstub.NewTemplate(a, icstub.MissHandlers{PropertyMiss: 0x1, MethodMiss: 0x2}, 1<<20)
	mgr, err := iccache.NewManager(demoResolver{}, stubs, 4096, 8, 64)
	if err != nil {
		return err
	}

	const siteID = uint64(1)
	for i := 0; i < 12; i++ {
		obj := &demoObject{shapeID: uint64(i % 10)}
		obj.SetInlineSlot(0, uint64(i*7))
		val, ok := mgr.HandlePropertyAccess(siteID, obj, "x")
		fmt.Printf("access #%d shape=%d -> value=%d ok=%v state=%v\n", i, obj.shapeID, val, ok, mgr.GetOrCreatePropertyCache(siteID).State)
	}

	for i := 0; i < 20; i++ {
		if _, err := g.Allocate(32, nil); err != nil {
			return err
		}
	}
	g.RequestCollection()
	if err := g.Collect(); err != nil {
		return err
	}
	stats := g.Stats()
	fmt.Printf("gc: collections=%d objects_marked=%d objects_swept=%d write_barrier_activations=%d\n",
		stats.TotalCollections, stats.ObjectsMarked, stats.ObjectsSwept, stats.WriteBarrierActivations)

	return nil
}

