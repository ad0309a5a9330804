package distributed

//Contains networking technicalities and constants

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/benchmark/latency"
)

var TYP = uint8(255)
var KB = 1024
var MB = 1024 * KB

var MAX_SIZE = 64 * MB //a 64x784x128 triple, json encoded

var Local = latency.Network{ //simulates LAN on localhost
	Kbps:    1024 * 1024, //1 Gbps
	Latency: 2 * time.Millisecond,
	MTU:     1500, // Ethernet
}

var Lan = latency.Local //no overhead, used in real distributed env.

//write TLV value
func WriteTo(c io.Writer, buf []byte) error {
	if len(buf) > MAX_SIZE {
		return errors.Wrapf(ErrProtocol, "payload of %d B exceeds %d B", len(buf), MAX_SIZE)
	}
	err := binary.Write(c, binary.LittleEndian, TYP) //1-byte type
	if err != nil {
		return err
	}
	err = binary.Write(c, binary.LittleEndian, uint32(len(buf))) //4-byte len
	if err != nil {
		return err
	}
	_, err = c.Write(buf)
	return err
}

//reads TLV value
func ReadFrom(c io.Reader) ([]byte, error) {
	var typ uint8
	err := binary.Read(c, binary.LittleEndian, &typ)
	if err != nil {
		return nil, err
	}
	if typ != TYP {
		return nil, errors.Wrapf(ErrProtocol, "unexpected type byte %d", typ)
	}
	var l uint32
	err = binary.Read(c, binary.LittleEndian, &l)
	if err != nil {
		return nil, err
	}
	if int(l) > MAX_SIZE {
		return nil, errors.Wrapf(ErrProtocol, "payload of %d B too large", l)
	}
	buf := make([]byte, l)
	_, err = io.ReadFull(c, buf)
	return buf, err
}

//json encodes v in one TLV frame
func writeMsg(c io.Writer, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}
	return WriteTo(c, buf)
}

//reads one TLV frame into v. Malformed payloads are protocol errors
func readMsg(c io.Reader, v interface{}) error {
	buf, err := ReadFrom(c)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return errors.Wrap(ErrProtocol, err.Error())
	}
	return nil
}
