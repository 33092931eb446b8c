package core

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"

	"github.com/bft-core/engine/signing"
)

// MockScheme is a hand-written stand-in for what `mockgen -source
// signing/scheme.go` would emit, in the same recorder-pattern shape as the
// teacher's consensus/tendermint/core/backend_mock.go.
type MockScheme struct {
	ctrl     *gomock.Controller
	recorder *MockSchemeMockRecorder
}

type MockSchemeMockRecorder struct {
	mock *MockScheme
}

func NewMockScheme(ctrl *gomock.Controller) *MockScheme {
	mock := &MockScheme{ctrl: ctrl}
	mock.recorder = &MockSchemeMockRecorder{mock}
	return mock
}

func (m *MockScheme) EXPECT() *MockSchemeMockRecorder { return m.recorder }

func (m *MockScheme) Sign(keyID, msg []byte) (signing.Signature, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Sign", keyID, msg)
	sig, _ := ret[0].(signing.Signature)
	err, _ := ret[1].(error)
	return sig, err
}

func (mr *MockSchemeMockRecorder) Sign(keyID, msg interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Sign", reflect.TypeOf((*MockScheme)(nil).Sign), keyID, msg)
}

func (m *MockScheme) Verify(pubKey, msg []byte, sig signing.Signature) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Verify", pubKey, msg, sig)
	ok, _ := ret[0].(bool)
	return ok
}

func (mr *MockSchemeMockRecorder) Verify(pubKey, msg, sig interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Verify", reflect.TypeOf((*MockScheme)(nil).Verify), pubKey, msg, sig)
}

func (m *MockScheme) Aggregate(sigs []signing.Signature) (signing.Signature, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Aggregate", sigs)
	sig, _ := ret[0].(signing.Signature)
	err, _ := ret[1].(error)
	return sig, err
}

func (mr *MockSchemeMockRecorder) Aggregate(sigs interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Aggregate", reflect.TypeOf((*MockScheme)(nil).Aggregate), sigs)
}

func (m *MockScheme) VerifyAggregate(pubKeys, msgs [][]byte, agg signing.Signature) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "VerifyAggregate", pubKeys, msgs, agg)
	ok, _ := ret[0].(bool)
	return ok
}

func (mr *MockSchemeMockRecorder) VerifyAggregate(pubKeys, msgs, agg interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "VerifyAggregate", reflect.TypeOf((*MockScheme)(nil).VerifyAggregate), pubKeys, msgs, agg)
}

func (m *MockScheme) Decode(raw []byte) (signing.Signature, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Decode", raw)
	sig, _ := ret[0].(signing.Signature)
	err, _ := ret[1].(error)
	return sig, err
}

func (mr *MockSchemeMockRecorder) Decode(raw interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Decode", reflect.TypeOf((*MockScheme)(nil).Decode), raw)
}

// fakeSignature is a trivial signing.Signature used across kernel tests
// that don't need real cryptography, only a scheme that round-trips.
type fakeSignature []byte

func (f fakeSignature) Bytes() []byte { return []byte(f) }
