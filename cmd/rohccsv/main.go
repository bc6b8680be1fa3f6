// Main package in rohccsv implements a command line tool that runs the
// TCP flows of a pcap capture through the ROHC compressor and writes one
// CSV row per packet: the flow, the chosen packet format, and the header
// byte counts before and after compression.
//
// Usage:
//   rohccsv capture.pcap > out.csv
//   rohccsv < capture.pcap > out.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/m-lab/go/anonymize"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/rs/xid"

	"github.com/nosmog/rohc"
	"github.com/nosmog/rohc/tcpip"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	promPort = flag.String("prom", "", "Prometheus metrics export address and port.  Empty disables the metrics server.")

	// A variable to enable mocking for testing.
	logFatal = log.Fatal
)

// Row is one CSV record describing one compressed packet.
type Row struct {
	FlowID          string `csv:"FlowID"`
	Packet          int    `csv:"Packet"`
	SrcIP           string `csv:"SrcIP"`
	SrcPort         uint16 `csv:"SrcPort"`
	DstIP           string `csv:"DstIP"`
	DstPort         uint16 `csv:"DstPort"`
	Format          string `csv:"Format"`
	HeaderBytes     int    `csv:"HeaderBytes"`
	CompressedBytes int    `csv:"CompressedBytes"`
	SavedBytes      int    `csv:"SavedBytes"`
}

// stream is the per-flow compression state of the tool.
type stream struct {
	id      string
	comp    *rohc.Compressor
	packets int
}

func addrs(pkt *tcpip.Packet) (src, dst net.IP) {
	outer := &pkt.IP[0]
	if outer.Version == 4 {
		s, d := outer.V4().SrcAddr(), outer.V4().DstAddr()
		return net.IP(s[:]), net.IP(d[:])
	}
	s, d := outer.V6().SrcAddr(), outer.V6().DstAddr()
	return net.IP(s[:]), net.IP(d[:])
}

// compressAll reads packets from the pcap reader and returns one row per
// compressible TCP packet.
func compressAll(r *pcapgo.Reader, anon anonymize.IPAnonymizer) ([]*Row, error) {
	flows := map[string]*stream{}
	var rows []*Row
	var buf []byte
	for {
		data, _, err := r.ReadPacketData()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.Lazy)
		if pkt.NetworkLayer() == nil {
			continue
		}
		raw := data
		if link := pkt.LinkLayer(); link != nil {
			raw = data[len(link.LayerContents()):]
		}
		if !rohc.CheckProfile(raw) {
			continue
		}
		parsed, err := tcpip.Parse(raw)
		if err != nil {
			continue
		}
		src, dst := addrs(parsed)
		key := fmt.Sprintf("%s:%d>%s:%d", src, parsed.TCP.SrcPort(), dst, parsed.TCP.DstPort())
		f := flows[key]
		if f == nil {
			f = &stream{id: xid.New().String(), comp: rohc.NewCompressor()}
			flows[key] = f
		}

		var res rohc.Result
		buf, res, err = f.comp.Compress(buf[:0], raw)
		if err != nil {
			log.Println("Could not compress packet:", err)
			continue
		}
		f.packets++

		anon.IP(src)
		anon.IP(dst)
		rows = append(rows, &Row{
			FlowID:          f.id,
			Packet:          f.packets,
			SrcIP:           src.String(),
			SrcPort:         parsed.TCP.SrcPort(),
			DstIP:           dst.String(),
			DstPort:         parsed.TCP.DstPort(),
			Format:          res.Format.String(),
			HeaderBytes:     res.PayloadOffset,
			CompressedBytes: res.HeaderLen,
			SavedBytes:      res.PayloadOffset - res.HeaderLen,
		})
	}
}

func toCSV(rows []*Row, wtr io.Writer) error {
	return gocsv.Marshal(rows, wtr)
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")

	if *promPort != "" {
		promSrv := prometheusx.MustStartPrometheus(*promPort)
		defer promSrv.Close()
	}

	args := flag.Args()
	var source io.ReadCloser = os.Stdin
	var err error
	if len(args) == 1 {
		source, err = os.Open(args[0])
		rtx.Must(err, "Could not open file %q", args[0])
	} else if len(args) > 1 {
		logFatal("Too many command-line arguments.")
	}
	defer source.Close()

	reader, err := pcapgo.NewReader(source)
	rtx.Must(err, "Could not read pcap header")

	rows, err := compressAll(reader, anonymize.New(anonymize.IPAnonymizationFlag))
	rtx.Must(err, "Could not read packets")
	rtx.Must(toCSV(rows, os.Stdout), "Could not convert output to CSV")
}
