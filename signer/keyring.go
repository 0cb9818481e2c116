// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/feebump"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyType selects the output template a key is used with.
type KeyType uint8

const (
	// KeyP2WPKH uses the key in a segwit v0 pay-to-witness-pubkey-hash
	// output.
	KeyP2WPKH KeyType = iota

	// KeyP2TR uses the key as the BIP 86 internal key of a taproot output
	// spent through the key path.
	KeyP2TR
)

// String returns the key type name.
func (k KeyType) String() string {
	switch k {
	case KeyP2WPKH:
		return "p2wpkh"
	case KeyP2TR:
		return "p2tr"
	}
	return fmt.Sprintf("Unknown KeyType (%d)", uint8(k))
}

// ParseKeyType returns the key type with the given name.
func ParseKeyType(name string) (KeyType, error) {
	switch name {
	case "p2wpkh":
		return KeyP2WPKH, nil
	case "p2tr":
		return KeyP2TR, nil
	}
	return 0, fmt.Errorf("unknown key type %q", name)
}

// KeySource returns the private key controlling an output script.
type KeySource interface {
	// KeyForScript returns the key able to spend pkScript, or a
	// MissingKey error.
	KeyForScript(pkScript []byte) (*btcec.PrivateKey, error)
}

// Key is a private key together with the address and output script it
// controls.
type Key struct {
	Type     KeyType
	Priv     *btcec.PrivateKey
	Address  btcutil.Address
	PkScript []byte
}

// KeyRing holds ephemeral demo keys indexed by the script they control.
//
// This structure is safe for concurrent access.
type KeyRing struct {
	params *chaincfg.Params

	mtx  sync.RWMutex
	keys map[string]*Key
}

// A compile-time assertion that KeyRing implements KeySource.
var _ KeySource = (*KeyRing)(nil)

// NewKeyRing returns an empty key ring for the given network.
func NewKeyRing(params *chaincfg.Params) *KeyRing {
	return &KeyRing{
		params: params,
		keys:   make(map[string]*Key),
	}
}

// Generate creates a fresh random key of the given type and adds it.
func (k *KeyRing) Generate(kt KeyType) (*Key, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return k.Add(priv, kt)
}

// ImportWIF adds the key encoded in wif.
func (k *KeyRing) ImportWIF(wif string, kt KeyType) (*Key, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, err
	}
	if !decoded.IsForNet(k.params) {
		return nil, fmt.Errorf("key is not for network %s",
			k.params.Name)
	}
	return k.Add(decoded.PrivKey, kt)
}

// Add derives the address and output script of priv for the given type and
// adds it to the ring.
func (k *KeyRing) Add(priv *btcec.PrivateKey, kt KeyType) (*Key, error) {
	pub := priv.PubKey()

	var (
		addr btcutil.Address
		err  error
	)
	switch kt {
	case KeyP2WPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pub.SerializeCompressed()), k.params,
		)

	case KeyP2TR:
		outputKey := txscript.ComputeTaprootKeyNoScript(pub)
		addr, err = btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(outputKey), k.params,
		)

	default:
		return nil, fmt.Errorf("unknown key type %d", kt)
	}
	if err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	key := &Key{
		Type:     kt,
		Priv:     priv,
		Address:  addr,
		PkScript: pkScript,
	}

	k.mtx.Lock()
	k.keys[string(pkScript)] = key
	k.mtx.Unlock()

	log.Debugf("Added %v key for address %v", kt, addr)

	return key, nil
}

// KeyForScript returns the private key controlling pkScript.
func (k *KeyRing) KeyForScript(pkScript []byte) (*btcec.PrivateKey, error) {
	k.mtx.RLock()
	key, ok := k.keys[string(pkScript)]
	k.mtx.RUnlock()
	if !ok {
		return nil, feebump.Errorf(feebump.MissingKey,
			"no key for script %x", pkScript)
	}
	return key.Priv, nil
}
