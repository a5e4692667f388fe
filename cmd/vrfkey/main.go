// Command vrfkey generates or inspects an oracle proving key and prints
// the values the coordinator needs to register it.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"

	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
)

type keyInfo struct {
	WIF        string `json:"wif,omitempty"`
	PublicKey  string `json:"public_key"`
	KeyHash    string `json:"key_hash"`
	Address    string `json:"address"`
	ScriptHash string `json:"script_hash"`
}

func main() {
	wif := flag.String("wif", "", "Inspect an existing WIF key instead of generating one")
	hideSecret := flag.Bool("public", false, "Omit the WIF from the output")
	flag.Parse()

	var (
		key *keys.PrivateKey
		err error
	)
	if *wif != "" {
		key, err = keys.NewPrivateKeyFromWIF(*wif)
	} else {
		key, err = keys.NewPrivateKey()
	}
	if err != nil {
		log.Fatalf("key: %v", err)
	}

	info := describe(key)
	if *hideSecret {
		info.WIF = ""
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func describe(key *keys.PrivateKey) keyInfo {
	prover := crypto.NewProver(key)
	return keyInfo{
		WIF:        key.WIF(),
		PublicKey:  hex.EncodeToString(prover.PublicKey()),
		KeyHash:    "0x" + prover.KeyHash().StringLE(),
		Address:    key.Address(),
		ScriptHash: fmt.Sprintf("0x%s", prover.Address().StringLE()),
	}
}
