package descriptors

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/chantools/descriptors/psbtutil"
)

const testPubKey2 = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"

func TestWshHashlockTimelockSatisfaction(t *testing.T) {
	preimage := bytes.Repeat([]byte{0x11}, 32)
	digest := sha256.Sum256(preimage)
	digestHex := hex.EncodeToString(digest[:])

	raw := "wsh(and_v(v:sha256(" + digestHex + ")," +
		"and_v(and_v(v:pk(" + testPubKey + "),v:pk(" + testPubKey2 + ")),older(5))))"

	opts := testOptions()
	opts.Preimages = map[string][]byte{digestHex: preimage}
	out, err := Parse(raw, opts)
	require.NoError(t, err)

	require.Nil(t, out.GetLockTime())
	require.NotNil(t, out.GetSequence())
	require.EqualValues(t, 5, *out.GetSequence())

	sigA := make([]byte, 71)
	sigA[0] = 0x30
	sigB := make([]byte, 70)
	sigB[0] = 0x30
	sat, err := out.GetScriptSatisfaction([]Signature{
		{PubKey: mustHex(t, testPubKey), Sig: sigA},
		{PubKey: mustHex(t, testPubKey2), Sig: sigB},
	})
	require.NoError(t, err)

	// Serialized witness order: the hashlock runs first so the preimage
	// sits on top of the initial stack, below it the two signatures in
	// reverse signing order.
	require.Equal(t, [][]byte{sigB, sigA, preimage}, sat.Stack)
	require.NotNil(t, sat.Sequence)
	require.EqualValues(t, 5, *sat.Sequence)
}

func TestInputWeightWpkh(t *testing.T) {
	out, err := Parse("wpkh("+testPubKey+")", testOptions())
	require.NoError(t, err)

	w, err := out.InputWeight(true, nil)
	require.NoError(t, err)
	// 41*4 base bytes plus the witness: 1 (item count) + 72 (placeholder sig size) + 1+33 (pubkey).
	require.Equal(t, uint32(41*4+(1+72+34)), w)
}

func TestInputWeightTrKeyOnly(t *testing.T) {
	out, err := Parse("tr("+testXOnlyA+")", testOptions())
	require.NoError(t, err)

	w, err := out.InputWeight(true, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(41*4+(1+65)), w)
}

func TestOutputWeight(t *testing.T) {
	out, err := Parse("wpkh("+testPubKey+")", testOptions())
	require.NoError(t, err)

	spk, err := out.GetScriptPubKey()
	require.NoError(t, err)
	require.Equal(t, uint32(4*(8+1+len(spk))), out.OutputWeight())
}

func newTestPacket(t *testing.T, prevScriptPubKey []byte, prevValue int64) (*psbt.Packet, *wire.MsgTx) {
	t.Helper()

	prevTx := wire.NewMsgTx(wire.TxVersion)
	prevTx.AddTxOut(&wire.TxOut{Value: prevValue, PkScript: prevScriptPubKey})

	unsignedTx := wire.NewMsgTx(wire.TxVersion)
	packet, err := psbt.NewFromUnsignedTx(unsignedTx)
	require.NoError(t, err)

	return packet, prevTx
}

func TestUpdatePsbtAsInputAndOutputWpkh(t *testing.T) {
	spending, err := Parse("wpkh("+testPubKey+")", testOptions())
	require.NoError(t, err)

	spendingSpk, err := spending.GetScriptPubKey()
	require.NoError(t, err)

	packet, prevTx := newTestPacket(t, spendingSpk, 50000)

	var buf bytes.Buffer
	require.NoError(t, prevTx.Serialize(&buf))

	prev := psbtutil.PrevOut{TxHex: buf.Bytes(), Value: 50000}
	finalize, err := spending.UpdatePsbtAsInput(packet, prev, 0, false)
	require.NoError(t, err)
	require.NotNil(t, finalize)
	require.Len(t, packet.Inputs, 1)
	require.NotNil(t, packet.Inputs[0].WitnessUtxo)

	paying, err := Parse("pkh("+testPubKey+")", testOptions())
	require.NoError(t, err)
	paying.UpdatePsbtAsOutput(packet, 40000)
	require.Len(t, packet.Outputs, 1)
	require.Equal(t, int64(40000), packet.UnsignedTx.TxOut[0].Value)

	pubKeyBytes := mustHex(t, testPubKey)
	fakeSig := make([]byte, 71)
	fakeSig[0] = 0x30
	err = finalize([]Signature{{PubKey: pubKeyBytes, Sig: fakeSig}}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, packet.Inputs[0].FinalScriptWitness)
}

func TestUpdatePsbtAsInputWshFinalize(t *testing.T) {
	spending, err := Parse("wsh(pk("+testPubKey+"))", testOptions())
	require.NoError(t, err)

	spk, err := spending.GetScriptPubKey()
	require.NoError(t, err)

	packet, prevTx := newTestPacket(t, spk, 100000)
	var buf bytes.Buffer
	require.NoError(t, prevTx.Serialize(&buf))

	prev := psbtutil.PrevOut{TxHex: buf.Bytes(), Value: 100000}
	_, err = spending.UpdatePsbtAsInput(packet, prev, 0, false)
	require.NoError(t, err)

	pubKeyBytes := mustHex(t, testPubKey)
	fakeSig := make([]byte, 71)
	err = spending.FinalizePsbtInput(
		packet, 0, []Signature{{PubKey: pubKeyBytes, Sig: fakeSig}}, nil, false,
	)
	require.NoError(t, err)
	require.NotEmpty(t, packet.Inputs[0].FinalScriptWitness)
}

func TestGuessOutputDefaultPk(t *testing.T) {
	out, err := Parse("pk("+testPubKey+")", testOptions())
	require.NoError(t, err)
	require.Equal(t, GuessedOutput{}, out.GuessOutput())
}

func TestParseShMsMultisig(t *testing.T) {
	raw := "sh(multi(1," + testPubKey + "," + testPubKey2 + "))"
	out, err := Parse(raw, testOptions())
	require.NoError(t, err)

	spk, err := out.GetScriptPubKey()
	require.NoError(t, err)
	require.Equal(t, byte(txscript.OP_HASH160), spk[0])
	require.Equal(t, GuessedOutput{IsSH: true}, out.GuessOutput())

	redeemScript, ok := out.GetRedeemScript()
	require.True(t, ok)
	require.NotEmpty(t, redeemScript)
}
