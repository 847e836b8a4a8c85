// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package analyzer implements the Disruption Analyzer: it reads the
// pcap Capture produced, reconstructs the tagged SequenceStream's
// sent/received timestamps, sweeps the received stream for gaps, and
// aggregates the result into the outage figures spec.md §4.7 defines.
package analyzer

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

const (
	taggedSrcPort    = 1234
	taggedDstPort    = 5000
	taggedPrefixLen  = 60
	defaultAllowedFloodedOriginals = 250
)

// observation is one accepted tagged packet: its sequence number and
// arrival time on the received side.
type observation struct {
	seq int
	t   float64
}

// Gap is one reconstructed disruption window (spec.md §3's Disruption
// entity).
type Gap struct {
	PrevDelivered int
	LostCount     int
	Duration      float64
	Start         float64
	End           float64
}

// Result is the full output of one analysis run.
type Result struct {
	Gaps                []Gap
	MaxDisruptTime      float64
	MaxLostID           int
	TotalDisruptPackets int
	TotalDisruptTime    float64
	DisruptionStart     float64
	DisruptionStop      float64

	// InfrastructureGaps lists payload values that fell strictly between
	// two received payloads but were neither sent nor received —
	// spec.md §4.7 step 4's "infrastructure anomaly" list.
	InfrastructureGaps []int

	// FloodSuppressed lists payload values observed more than once,
	// after the first (spec.md scenario S4).
	FloodSuppressed []int

	SentCounter     int
	lastReceivedSeq int

	CheckedSuccessfully bool
	FailureReason       string
}

// Input is everything Analyze needs about the run it's measuring.
type Input struct {
	PcapPath                string
	DUTMAC                  net.HardwareAddr
	VlanMAC                 net.HardwareAddr
	SentPacketCount         int
	RebootIsFast            bool
	AllowedFloodedOriginals int
}

// Analyze implements spec.md §4.7's algorithm precisely: filter to the
// tagged stream, flood-suppress the received side, sort by
// (payload, time), sweep for gaps against the sent-side timestamps, then
// aggregate and sanity-check.
func Analyze(in Input) (*Result, error) {
	file, err := os.Open(in.PcapPath)
	if err != nil {
		return nil, fmt.Errorf("analyzer: open pcap %q: %w", in.PcapPath, err)
	}
	defer file.Close()

	reader, err := pcapgo.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("analyzer: parse pcap header: %w", err)
	}

	sent := map[int]float64{}
	var floodDebug []int
	var received []observation
	seenReceived := map[int]bool{}
	sentCounter := 0
	lastReceived := -1

	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			break // EOF or truncated read ends the scan
		}
		seq, ok := parseTaggedPayload(data, in.SentPacketCount)
		if !ok {
			continue
		}
		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
		eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
		if !ok {
			continue
		}
		t := float64(ci.Timestamp.UnixNano()) / 1e9

		isSentObservation := macIs(eth.DstMAC, in.DUTMAC) || macIs(eth.DstMAC, in.VlanMAC)
		isReceivedObservation := macIs(eth.SrcMAC, in.DUTMAC) || macIs(eth.SrcMAC, in.VlanMAC)

		if isSentObservation {
			sentCounter++
			if _, ok := sent[seq]; !ok {
				sent[seq] = t
			} else {
				floodDebug = append(floodDebug, seq)
			}
		}
		if isReceivedObservation {
			if seenReceived[seq] {
				if !isSentObservation {
					floodDebug = append(floodDebug, seq)
				}
				continue
			}
			seenReceived[seq] = true
			received = append(received, observation{seq: seq, t: t})
			if seq > lastReceived {
				lastReceived = seq
			}
		}
	}

	sort.SliceStable(received, func(i, j int) bool {
		if received[i].seq != received[j].seq {
			return received[i].seq < received[j].seq
		}
		return received[i].t < received[j].t
	})

	res := &Result{SentCounter: sentCounter, FloodSuppressed: floodDebug, lastReceivedSeq: lastReceived}
	res.sweep(received, sent)
	res.aggregate()
	res.sanityCheck(in)
	return res, nil
}

func (r *Result) sweep(received []observation, sent map[int]float64) {
	prev := -1
	for _, obs := range received {
		payload := obs.seq
		if payload-prev > 1 {
			if _, wasSent := sent[payload]; !wasSent {
				continue // not a loss: this payload was never actually sent
			}
			_, anchorTime, ok := nearestSentInRange(sent, prev, payload)
			if !ok {
				prev = payload
				continue
			}
			duration := sent[payload] - anchorTime
			r.Gaps = append(r.Gaps, Gap{
				PrevDelivered: prev,
				LostCount:     payload - prev - 1,
				Duration:      duration,
				Start:         obs.t - duration,
				End:           obs.t,
			})
			for mid := prev + 1; mid < payload; mid++ {
				if _, wasSent := sent[mid]; wasSent {
					continue
				}
				r.InfrastructureGaps = append(r.InfrastructureGaps, mid)
			}
		}
		prev = payload
	}
}

// nearestSentInRange finds the smallest sent sequence number strictly
// inside (prev, payload) — the first packet actually lost — which
// spec.md §4.7 step 4 calls the "anchor". Using the smallest rather than
// the largest match is what makes the gap's duration span the full
// outage instead of collapsing to a single send interval.
func nearestSentInRange(sent map[int]float64, prev, payload int) (int, float64, bool) {
	for s := prev + 1; s < payload; s++ {
		if t, ok := sent[s]; ok {
			return s, t, true
		}
	}
	return 0, 0, false
}

func (r *Result) aggregate() {
	for _, g := range r.Gaps {
		if g.Duration > r.MaxDisruptTime {
			r.MaxDisruptTime = g.Duration
			r.MaxLostID = g.LostCount
		}
		r.TotalDisruptPackets += g.LostCount
		r.TotalDisruptTime += g.Duration
	}
	if len(r.Gaps) > 0 {
		r.DisruptionStart = r.Gaps[0].Start
		r.DisruptionStop = r.Gaps[len(r.Gaps)-1].End
	}
}

func (r *Result) sanityCheck(in Input) {
	r.CheckedSuccessfully = true

	if r.lastReceivedSeq != in.SentPacketCount-1 {
		r.CheckedSuccessfully = false
		r.FailureReason = "Unable to calculate the dataplane traffic loss time: outage never closed within the capture window"
		return
	}
	if r.SentCounter < in.SentPacketCount {
		r.CheckedSuccessfully = false
		r.FailureReason = "infrastructure fault: capture dropped sent copies of the tagged stream"
		return
	}
	totalValidationPackets := in.SentPacketCount
	allowed := in.AllowedFloodedOriginals
	if allowed == 0 {
		allowed = defaultAllowedFloodedOriginals
	}
	if r.SentCounter-totalValidationPackets > allowed {
		r.CheckedSuccessfully = false
		r.FailureReason = fmt.Sprintf("device flooded more than %d original packets", allowed)
		return
	}
	if in.RebootIsFast && len(r.Gaps) == 0 {
		r.CheckedSuccessfully = false
		r.FailureReason = "fast-reboot reported zero loss: measurement failure, not a clean reboot"
	}
}

func macIs(mac, candidate net.HardwareAddr) bool {
	return candidate != nil && mac.String() == candidate.String()
}

func parseTaggedPayload(data []byte, limit int) (int, bool) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	if pkt.Layer(layers.LayerTypeICMPv4) != nil {
		return 0, false
	}
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return 0, false
	}
	tcp := tcpLayer.(*layers.TCP)
	if uint16(tcp.SrcPort) != taggedSrcPort || uint16(tcp.DstPort) != taggedDstPort {
		return 0, false
	}
	payload := tcp.LayerPayload()
	if len(payload) <= taggedPrefixLen {
		return 0, false
	}
	seq, err := strconv.Atoi(string(payload[taggedPrefixLen:]))
	if err != nil || seq < 0 || seq >= limit {
		return 0, false
	}
	return seq, true
}
