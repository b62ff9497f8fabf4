package pointcloud

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestOrganized(t *testing.T) {
	o := NewOrganized(3, 2)
	test.That(t, o.Size(), test.ShouldEqual, 6)
	test.That(t, o.CountValid(), test.ShouldEqual, 0)

	o.Set(2, 1, r3.Vector{X: 0.1, Y: -0.2, Z: 1.5})
	test.That(t, o.At(2, 1), test.ShouldResemble, r3.Vector{X: 0.1, Y: -0.2, Z: 1.5})
	test.That(t, o.Valid(5), test.ShouldBeTrue)
	test.That(t, o.Valid(0), test.ShouldBeFalse)
	test.That(t, o.Row(1)[2].Z, test.ShouldEqual, 1.5)
	test.That(t, o.CountValid(), test.ShouldEqual, 1)

	other := NewOrganized(3, 2)
	test.That(t, other.CopyFrom(o), test.ShouldBeNil)
	test.That(t, other.Points(), test.ShouldResemble, o.Points())
	test.That(t, NewOrganized(2, 3).CopyFrom(o), test.ShouldNotBeNil)
}

func TestToPCDAscii(t *testing.T) {
	o := NewOrganized(2, 1)
	o.Set(1, 0, r3.Vector{X: 1, Y: 2, Z: 3})

	var buf bytes.Buffer
	test.That(t, ToPCD(o, nil, &buf, PCDAscii), test.ShouldBeNil)
	out := buf.String()
	test.That(t, out, test.ShouldContainSubstring, "WIDTH 2\nHEIGHT 1\n")
	test.That(t, out, test.ShouldContainSubstring, "POINTS 2\nDATA ascii\n")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	test.That(t, lines[len(lines)-2], test.ShouldEqual, "nan nan nan")
	test.That(t, lines[len(lines)-1], test.ShouldEqual, "1.000000 2.000000 3.000000")
}

func TestToPCDBinaryColor(t *testing.T) {
	o := NewOrganized(1, 1)
	o.Set(0, 0, r3.Vector{X: 0.5, Y: 0.25, Z: 2})
	colors := image.NewRGBA(image.Rect(0, 0, 1, 1))
	colors.Set(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	var buf bytes.Buffer
	test.That(t, ToPCD(o, colors, &buf, PCDBinary), test.ShouldBeNil)
	data := buf.Bytes()
	idx := bytes.Index(data, []byte("DATA binary\n"))
	test.That(t, idx, test.ShouldBeGreaterThan, 0)
	body := data[idx+len("DATA binary\n"):]
	test.That(t, body, test.ShouldHaveLength, 16)
	test.That(t, math.Float32frombits(binary.LittleEndian.Uint32(body[8:])), test.ShouldEqual, float32(2))
	test.That(t, binary.LittleEndian.Uint32(body[12:]), test.ShouldEqual, uint32(1<<16|2<<8|3))

	test.That(t, ToPCD(o, image.NewRGBA(image.Rect(0, 0, 2, 1)), &buf, PCDBinary), test.ShouldNotBeNil)
}
