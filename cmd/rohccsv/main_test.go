package main

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/m-lab/go/anonymize"
	"github.com/m-lab/go/rtx"
)

func testPacket(t *testing.T, seq uint32, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Id: uint16(seq), Protocol: layers.IPProtocolTCP,
		Flags: layers.IPv4DontFragment,
		SrcIP: net.IPv4(192, 0, 2, 10).To4(), DstIP: net.IPv4(198, 51, 100, 20).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: 5001, DstPort: 44100,
		Seq: seq, Ack: 9000, ACK: true, Window: 4096,
	}
	rtx.Must(tcp.SetNetworkLayerForChecksum(ip), "Could not set checksum layer")
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	rtx.Must(gopacket.SerializeLayers(buf, opts, ip, tcp, gopacket.Payload(payload)), "Could not serialize")
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

func testPcap(t *testing.T, packets ...[]byte) *pcapgo.Reader {
	t.Helper()
	var raw bytes.Buffer
	w := pcapgo.NewWriter(&raw)
	rtx.Must(w.WriteFileHeader(65536, layers.LinkTypeRaw), "Could not write pcap header")
	ts := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(p),
			Length:        len(p),
		}
		rtx.Must(w.WritePacket(ci, p), "Could not write packet")
	}
	r, err := pcapgo.NewReader(&raw)
	rtx.Must(err, "Could not reopen pcap")
	return r
}

func TestCompressAll(t *testing.T) {
	pay := make([]byte, 100)
	r := testPcap(t,
		testPacket(t, 1000, pay),
		testPacket(t, 1100, pay),
		testPacket(t, 1200, pay),
	)
	rows, err := compressAll(r, anonymize.New(anonymize.None))
	rtx.Must(err, "Could not compress pcap")

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Format != "IR" || rows[1].Format != "IR-DYN" {
		t.Errorf("expected IR then IR-DYN, got %s then %s", rows[0].Format, rows[1].Format)
	}
	if rows[0].FlowID != rows[2].FlowID {
		t.Error("all packets belong to one flow")
	}
	if rows[2].Packet != 3 {
		t.Errorf("packet counter = %d, want 3", rows[2].Packet)
	}
	if rows[2].SavedBytes <= 0 {
		t.Error("steady-state packet should save header bytes")
	}
	if rows[0].SrcIP != "192.0.2.10" || rows[0].DstPort != 44100 {
		t.Errorf("bad addressing in row: %+v", rows[0])
	}
}

func TestToCSV(t *testing.T) {
	rows := []*Row{{FlowID: "abc", Packet: 1, Format: "IR", HeaderBytes: 40, CompressedBytes: 60, SavedBytes: -20}}
	var out bytes.Buffer
	rtx.Must(toCSV(rows, &out), "Could not marshal CSV")
	got := out.String()
	if !strings.Contains(got, "FlowID") || !strings.Contains(got, "abc") {
		t.Errorf("unexpected CSV output: %q", got)
	}
}

func TestCompressAllSkipsNonTCP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(10, 0, 0, 1).To4(), DstIP: net.IPv4(10, 0, 0, 2).To4(),
	}
	udp := &layers.UDP{SrcPort: 53, DstPort: 53}
	rtx.Must(udp.SetNetworkLayerForChecksum(ip), "Could not set checksum layer")
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	rtx.Must(gopacket.SerializeLayers(buf, opts, ip, udp), "Could not serialize")

	r := testPcap(t, buf.Bytes())
	rows, err := compressAll(r, anonymize.New(anonymize.None))
	rtx.Must(err, "Could not process pcap")
	if len(rows) != 0 {
		t.Errorf("UDP packet should be skipped, got %d rows", len(rows))
	}
}
