package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stock-dashboard/internal/types"
)

// TrExecution is the real-time execution price transaction.
const TrExecution = "H0STCNT0"

// executionFields is the fixed width of one H0STCNT0 record.
const executionFields = 46

// Field offsets inside an H0STCNT0 record.
const (
	fieldSymbol      = 0
	fieldTime        = 1
	fieldPrice       = 2
	fieldSign        = 3
	fieldChange      = 4
	fieldChangeRate  = 5
	fieldWeightedAvg = 6
	fieldOpen        = 7
	fieldHigh        = 8
	fieldLow         = 9
	fieldTradeVolume = 12
	fieldVolume      = 13
)

// FrameKind classifies an inbound socket message.
type FrameKind int

const (
	FrameUnrecognized FrameKind = iota
	FrameTick
	FrameAck
	FramePingPong
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameTick:
		return "tick"
	case FrameAck:
		return "ack"
	case FramePingPong:
		return "pingpong"
	case FrameError:
		return "error"
	default:
		return "unrecognized"
	}
}

// Frame is a decoded inbound message. Only the fields relevant to Kind are
// set; Raw always holds the original payload.
type Frame struct {
	Kind  FrameKind
	TrID  string
	Ticks []types.Tick

	// Control frames
	TrKey   string
	RtCd    string
	MsgCd   string
	Message string

	// Err explains why a frame is unrecognized, or which records of a data
	// frame were dropped.
	Err error
	Raw []byte
}

var (
	errEmptyFrame     = errors.New("empty frame")
	errEncrypted      = errors.New("encrypted payload")
	errUnsupportedTr  = errors.New("unsupported tr_id")
	errBadEnvelope    = errors.New("malformed envelope")
	errMissingSymbol  = errors.New("missing symbol")
	errBadPrice       = errors.New("non-numeric price")
	errShortRecord    = errors.New("record too short")
	errUnknownControl = errors.New("unknown control frame")
)

const ackLiteral = "SUBSCRIBE SUCCESS"

// Decode classifies raw before any field is interpreted.
func Decode(raw []byte) Frame {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "":
		return Frame{Kind: FrameUnrecognized, Err: errEmptyFrame, Raw: raw}
	case strings.EqualFold(s, ackLiteral):
		return Frame{Kind: FrameAck, Message: s, Raw: raw}
	case s[0] == '{':
		return decodeControl(raw)
	case s[0] == '0' || s[0] == '1':
		return decodeData(s, raw)
	default:
		return Frame{Kind: FrameUnrecognized, Err: errBadEnvelope, Raw: raw}
	}
}

type controlFrame struct {
	Header struct {
		TrID  string `json:"tr_id"`
		TrKey string `json:"tr_key"`
	} `json:"header"`
	Body struct {
		RtCd  string `json:"rt_cd"`
		MsgCd string `json:"msg_cd"`
		Msg1  string `json:"msg1"`
	} `json:"body"`
}

func decodeControl(raw []byte) Frame {
	var c controlFrame
	if err := json.Unmarshal(raw, &c); err != nil {
		return Frame{Kind: FrameUnrecognized, Err: fmt.Errorf("%w: %v", errBadEnvelope, err), Raw: raw}
	}
	f := Frame{
		TrID:    c.Header.TrID,
		TrKey:   c.Header.TrKey,
		RtCd:    c.Body.RtCd,
		MsgCd:   c.Body.MsgCd,
		Message: c.Body.Msg1,
		Raw:     raw,
	}
	switch {
	case c.Header.TrID == "PINGPONG":
		f.Kind = FramePingPong
	case c.Body.RtCd != "" && c.Body.RtCd != "0":
		f.Kind = FrameError
	case c.Body.RtCd == "0" || strings.Contains(strings.ToUpper(c.Body.Msg1), ackLiteral):
		f.Kind = FrameAck
	default:
		f.Kind = FrameUnrecognized
		f.Err = errUnknownControl
	}
	return f
}

// decodeData parses "<encrypted>|<tr_id>|<count>|<record^record^...>".
func decodeData(s string, raw []byte) Frame {
	parts := strings.SplitN(s, "|", 4)
	if len(parts) != 4 {
		return Frame{Kind: FrameUnrecognized, Err: errBadEnvelope, Raw: raw}
	}
	f := Frame{TrID: parts[1], Raw: raw}
	if parts[0] != "0" {
		f.Err = errEncrypted
		return f
	}
	if parts[1] != TrExecution {
		f.Err = fmt.Errorf("%w %q", errUnsupportedTr, parts[1])
		return f
	}
	count, err := strconv.Atoi(parts[2])
	if err != nil || count < 1 {
		f.Err = fmt.Errorf("%w: record count %q", errBadEnvelope, parts[2])
		return f
	}

	fields := strings.Split(parts[3], "^")
	records := splitRecords(fields, count)

	var errs []error
	for i, rec := range records {
		tick, err := parseExecution(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		f.Ticks = append(f.Ticks, tick)
	}
	if len(records) < count {
		errs = append(errs, fmt.Errorf("%w: %d of %d records present", errShortRecord, len(records), count))
	}
	f.Err = errors.Join(errs...)
	if len(f.Ticks) > 0 {
		f.Kind = FrameTick
	}
	return f
}

// splitRecords cuts the flat field list into count records. A single record
// may be shorter than the full width; trailing fields are best-effort.
func splitRecords(fields []string, count int) [][]string {
	if count == 1 {
		return [][]string{fields}
	}
	var out [][]string
	for i := 0; i < count; i++ {
		start := i * executionFields
		if start >= len(fields) {
			break
		}
		end := start + executionFields
		if end > len(fields) {
			end = len(fields)
		}
		out = append(out, fields[start:end])
	}
	return out
}

func parseExecution(rec []string) (types.Tick, error) {
	if len(rec) <= fieldPrice {
		return types.Tick{}, errShortRecord
	}
	symbol := strings.TrimSpace(rec[fieldSymbol])
	if symbol == "" {
		return types.Tick{}, errMissingSymbol
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(rec[fieldPrice]), 64)
	if err != nil {
		return types.Tick{}, fmt.Errorf("%w %q", errBadPrice, rec[fieldPrice])
	}

	sign := types.Sign(intAt(rec, fieldSign))
	if sign < types.SignUpperLimit || sign > types.SignDown {
		sign = types.SignUnknown
	}
	return types.Tick{
		Symbol:      symbol,
		Time:        strAt(rec, fieldTime),
		Price:       price,
		Sign:        sign,
		Change:      floatAt(rec, fieldChange),
		ChangeRate:  floatAt(rec, fieldChangeRate),
		WeightedAvg: floatAt(rec, fieldWeightedAvg),
		Open:        floatAt(rec, fieldOpen),
		High:        floatAt(rec, fieldHigh),
		Low:         floatAt(rec, fieldLow),
		TradeVolume: intAt(rec, fieldTradeVolume),
		Volume:      intAt(rec, fieldVolume),
	}, nil
}

func strAt(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func floatAt(rec []string, i int) float64 {
	v, err := strconv.ParseFloat(strAt(rec, i), 64)
	if err != nil {
		return 0
	}
	return v
}

func intAt(rec []string, i int) int64 {
	v, err := strconv.ParseInt(strAt(rec, i), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// approvalRejected reports whether an error frame says the approval key used
// for the subscription is not accepted.
func (f Frame) approvalRejected() bool {
	if f.Kind != FrameError {
		return false
	}
	return f.MsgCd == "OPSP0011" || strings.Contains(strings.ToLower(f.Message), "approval")
}
