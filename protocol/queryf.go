package protocol

import "tars-rpc/codec"

// Registry query functions on the tars.tarsregistry.QueryObj servant.
const (
	QueryFindObjectByID          = "findObjectById"
	QueryFindObjectByID4Any      = "findObjectById4Any"
	QueryFindObjectByID4All      = "findObjectById4All"
	QueryFindObjectByIDSameGroup = "findObjectByIdInSameGroup"
	QueryFindObjectByIDSameSet   = "findObjectByIdInSameSet"
)

// EndpointF is the endpoint struct returned by the registry. Field
// comments give the wire tags inside the struct.
type EndpointF struct {
	Host        string // tag 0
	Port        int32  // tag 1
	Timeout     int32  // tag 2
	IsTCP       int32  // tag 3: 0=udp, 1=tcp, 2=ssl
	Grid        int32  // tag 4
	GroupWorkID int32  // tag 5
	GroupRealID int32  // tag 6
	SetID       string // tag 7
	QOS         int32  // tag 8
	BakFlag     int32  // tag 9
	Weight      int32  // tag 11
	WeightType  int32  // tag 12
	AuthType    int32  // tag 13
}

// WriteTo encodes the struct fields (no struct-begin/end markers).
func (e *EndpointF) WriteTo(buf *codec.Buffer) {
	buf.WriteString(e.Host, 0)
	buf.WriteInt32(e.Port, 1)
	buf.WriteInt32(e.Timeout, 2)
	buf.WriteInt32(e.IsTCP, 3)
	buf.WriteInt32(e.Grid, 4)
	buf.WriteInt32(e.GroupWorkID, 5)
	buf.WriteInt32(e.GroupRealID, 6)
	buf.WriteString(e.SetID, 7)
	buf.WriteInt32(e.QOS, 8)
	buf.WriteInt32(e.BakFlag, 9)
	buf.WriteInt32(e.Weight, 11)
	buf.WriteInt32(e.WeightType, 12)
	buf.WriteInt32(e.AuthType, 13)
}

// ReadFrom decodes the struct fields from the current position.
func (e *EndpointF) ReadFrom(r *codec.Reader) error {
	var err error
	if e.Host, err = r.ReadString(0, true); err != nil {
		return err
	}
	if e.Port, err = r.ReadInt32(1, true); err != nil {
		return err
	}
	if e.Timeout, err = r.ReadInt32(2, true); err != nil {
		return err
	}
	if e.IsTCP, err = r.ReadInt32(3, true); err != nil {
		return err
	}
	if e.Grid, err = r.ReadInt32(4, true); err != nil {
		return err
	}
	if e.GroupWorkID, err = r.ReadInt32(5, false); err != nil {
		return err
	}
	if e.GroupRealID, err = r.ReadInt32(6, false); err != nil {
		return err
	}
	if e.SetID, err = r.ReadString(7, false); err != nil {
		return err
	}
	if e.QOS, err = r.ReadInt32(8, false); err != nil {
		return err
	}
	if e.BakFlag, err = r.ReadInt32(9, false); err != nil {
		return err
	}
	if e.Weight, err = r.ReadInt32(11, false); err != nil {
		return err
	}
	if e.WeightType, err = r.ReadInt32(12, false); err != nil {
		return err
	}
	if e.AuthType, err = r.ReadInt32(13, false); err != nil {
		return err
	}
	return nil
}

// EncodeEndpointList writes a list of endpoint structs at the given tag.
func EncodeEndpointList(buf *codec.Buffer, eps []EndpointF, tag uint8) {
	buf.WriteListHead(len(eps), tag)
	for i := range eps {
		buf.WriteStructBegin(0)
		eps[i].WriteTo(buf)
		buf.WriteStructEnd()
	}
}

// DecodeEndpointList reads a list of endpoint structs at the given tag.
// An absent optional list decodes as empty.
func DecodeEndpointList(r *codec.Reader, tag uint8, require bool) ([]EndpointF, error) {
	count, ok, err := r.ReadListBegin(tag, require)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]EndpointF, 0, count)
	for i := int32(0); i < count; i++ {
		found, err := r.ReadStructBegin(0, true)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		var ep EndpointF
		if err := ep.ReadFrom(r); err != nil {
			return nil, err
		}
		if err := r.SkipToStructEnd(); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}
