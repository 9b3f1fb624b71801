package protocol

import "tars-rpc/codec"

// LoggerByInfo is the remote-log function on the tars.tarslog.LogObj
// servant; it takes a LogInfo struct at tag 0 and a list of log lines at
// tag 1, sent as a oneway request.
const LoggerByInfo = "loggerbyInfo"

// LogInfo describes the remote log file a batch of lines belongs to.
type LogInfo struct {
	AppName          string // tag 0
	ServerName       string // tag 1
	FileName         string // tag 2
	Format           string // tag 3: time format, e.g. "%Y%m%d"
	SetDivision      string // tag 4
	HasSuffix        bool   // tag 5
	HasAppNamePrefix bool   // tag 6
	HasSquareBracket bool   // tag 7
	ConcatStr        string // tag 8
	Separator        string // tag 9
	LogType          string // tag 10: day/hour/minute
}

// NewLogInfo creates a LogInfo with the conventional defaults.
func NewLogInfo(app, server, filename string) *LogInfo {
	return &LogInfo{
		AppName:          app,
		ServerName:       server,
		FileName:         filename,
		Format:           "%Y%m%d",
		HasSuffix:        true,
		HasAppNamePrefix: true,
		ConcatStr:        "_",
		Separator:        "|",
		LogType:          "day",
	}
}

// WriteTo encodes the struct fields (no struct-begin/end markers).
func (l *LogInfo) WriteTo(buf *codec.Buffer) {
	buf.WriteString(l.AppName, 0)
	buf.WriteString(l.ServerName, 1)
	buf.WriteString(l.FileName, 2)
	buf.WriteString(l.Format, 3)
	buf.WriteString(l.SetDivision, 4)
	buf.WriteBool(l.HasSuffix, 5)
	buf.WriteBool(l.HasAppNamePrefix, 6)
	buf.WriteBool(l.HasSquareBracket, 7)
	buf.WriteString(l.ConcatStr, 8)
	buf.WriteString(l.Separator, 9)
	buf.WriteString(l.LogType, 10)
}

// EncodeLogPayload builds the loggerbyInfo request payload: the LogInfo
// struct at tag 0 and the log lines at tag 1.
func EncodeLogPayload(info *LogInfo, lines []string) []byte {
	buf := codec.NewBufferCapacity(256)
	buf.WriteStructBegin(0)
	info.WriteTo(buf)
	buf.WriteStructEnd()
	buf.WriteStringList(lines, 1)
	return buf.Bytes()
}
