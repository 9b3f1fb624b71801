package protocol

import (
	"math"

	"tars-rpc/codec"
)

// ReportMicMsg is the reporting function on the tars.tarsstat.StatObj
// servant; its payload is a map of StatHead to StatBody at tag 0 and a
// from-client flag at tag 1.
const ReportMicMsg = "reportMicMsg"

// StatTimePoints are the upper bounds (ms) of the response-time buckets.
var StatTimePoints = [...]int32{5, 10, 50, 100, 200, 500, 1000, 2000, 3000}

// StatHead identifies one caller→callee call edge. The struct is
// comparable and used directly as an aggregation map key.
type StatHead struct {
	MasterName    string // tag 0
	SlaveName     string // tag 1
	InterfaceName string // tag 2
	MasterIP      string // tag 3
	SlaveIP       string // tag 4
	SlavePort     int32  // tag 5
	ReturnValue   int32  // tag 6
	SlaveSetName  string // tag 7
	SlaveSetArea  string // tag 8
	SlaveSetID    string // tag 9
	TarsVersion   string // tag 10
}

// WriteTo encodes the struct fields (no struct-begin/end markers).
func (h *StatHead) WriteTo(buf *codec.Buffer) {
	buf.WriteString(h.MasterName, 0)
	buf.WriteString(h.SlaveName, 1)
	buf.WriteString(h.InterfaceName, 2)
	buf.WriteString(h.MasterIP, 3)
	buf.WriteString(h.SlaveIP, 4)
	buf.WriteInt32(h.SlavePort, 5)
	buf.WriteInt32(h.ReturnValue, 6)
	buf.WriteString(h.SlaveSetName, 7)
	buf.WriteString(h.SlaveSetArea, 8)
	buf.WriteString(h.SlaveSetID, 9)
	buf.WriteString(h.TarsVersion, 10)
}

// ReadFrom decodes the struct fields from the current position.
func (h *StatHead) ReadFrom(r *codec.Reader) error {
	var err error
	if h.MasterName, err = r.ReadString(0, true); err != nil {
		return err
	}
	if h.SlaveName, err = r.ReadString(1, true); err != nil {
		return err
	}
	if h.InterfaceName, err = r.ReadString(2, true); err != nil {
		return err
	}
	if h.MasterIP, err = r.ReadString(3, true); err != nil {
		return err
	}
	if h.SlaveIP, err = r.ReadString(4, true); err != nil {
		return err
	}
	if h.SlavePort, err = r.ReadInt32(5, true); err != nil {
		return err
	}
	if h.ReturnValue, err = r.ReadInt32(6, true); err != nil {
		return err
	}
	if h.SlaveSetName, err = r.ReadString(7, false); err != nil {
		return err
	}
	if h.SlaveSetArea, err = r.ReadString(8, false); err != nil {
		return err
	}
	if h.SlaveSetID, err = r.ReadString(9, false); err != nil {
		return err
	}
	if h.TarsVersion, err = r.ReadString(10, false); err != nil {
		return err
	}
	return nil
}

// StatBody carries the aggregated metrics for one call edge.
type StatBody struct {
	Count         int32           // tag 0: success count
	TimeoutCount  int32           // tag 1
	ExecCount     int32           // tag 2: exception count
	IntervalCount map[int32]int32 // tag 3: bucket upper bound → count
	TotalRspTime  int64           // tag 4: ms
	MaxRspTime    int32           // tag 5
	MinRspTime    int32           // tag 6
}

// NewStatBody creates an empty body with MinRspTime primed for min().
func NewStatBody() *StatBody {
	return &StatBody{
		IntervalCount: map[int32]int32{},
		MinRspTime:    math.MaxInt32,
	}
}

// AddResponseTime records one call's response time into the totals,
// extrema, and bucket distribution.
func (b *StatBody) AddResponseTime(rspMs int64) {
	v := int32(rspMs)
	b.TotalRspTime += rspMs
	if v > b.MaxRspTime {
		b.MaxRspTime = v
	}
	if v < b.MinRspTime {
		b.MinRspTime = v
	}
	for _, point := range StatTimePoints {
		if v < point {
			b.IntervalCount[point]++
			return
		}
	}
	last := StatTimePoints[len(StatTimePoints)-1]
	b.IntervalCount[last]++
}

// Merge folds other into b.
func (b *StatBody) Merge(other *StatBody) {
	b.Count += other.Count
	b.TimeoutCount += other.TimeoutCount
	b.ExecCount += other.ExecCount
	b.TotalRspTime += other.TotalRspTime
	if other.MaxRspTime > b.MaxRspTime {
		b.MaxRspTime = other.MaxRspTime
	}
	if other.MinRspTime < b.MinRspTime {
		b.MinRspTime = other.MinRspTime
	}
	for k, v := range other.IntervalCount {
		b.IntervalCount[k] += v
	}
}

// WriteTo encodes the struct fields (no struct-begin/end markers).
func (b *StatBody) WriteTo(buf *codec.Buffer) {
	buf.WriteInt32(b.Count, 0)
	buf.WriteInt32(b.TimeoutCount, 1)
	buf.WriteInt32(b.ExecCount, 2)
	buf.WriteMapHead(len(b.IntervalCount), 3)
	for k, v := range b.IntervalCount {
		buf.WriteInt32(k, 0)
		buf.WriteInt32(v, 1)
	}
	buf.WriteInt64(b.TotalRspTime, 4)
	buf.WriteInt32(b.MaxRspTime, 5)
	buf.WriteInt32(b.MinRspTime, 6)
}

// EncodeStatPayload builds the reportMicMsg request payload: the head→body
// map at tag 0 and the from-client flag at tag 1.
func EncodeStatPayload(stats map[StatHead]*StatBody, fromClient bool) []byte {
	buf := codec.NewBufferCapacity(512)
	buf.WriteMapHead(len(stats), 0)
	for head, body := range stats {
		buf.WriteStructBegin(0)
		head.WriteTo(buf)
		buf.WriteStructEnd()
		buf.WriteStructBegin(1)
		body.WriteTo(buf)
		buf.WriteStructEnd()
	}
	buf.WriteBool(fromClient, 1)
	return buf.Bytes()
}
