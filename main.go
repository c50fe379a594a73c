package main

import (
	"log"
	"path/filepath"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	"github.com/spf13/viper"

	"boardvote/chaincode"
	"boardvote/fhe"
	"boardvote/registry"
	"boardvote/storage"
)

func initConfig() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("boardvote")
	v.AutomaticEnv()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("key_bits", 2048)
	v.SetDefault("captable_file", "")
	v.SetDefault("chaincode_id", "")
	v.SetDefault("listen_address", "")

	// Standard Fabric external-chaincode variables take precedence.
	v.BindEnv("chaincode_id", "CHAINCODE_ID")
	v.BindEnv("listen_address", "CHAINCODE_SERVER_ADDRESS")

	return v
}

func main() {
	conf := initConfig()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	dataDir := conf.GetString("data_dir")

	creds, err := fhe.LoadOrGenerateCredentials(filepath.Join(dataDir, "engine_credentials.json"))
	if err != nil {
		log.Fatalf("Failed to load engine credentials: %v", err)
	}
	seed, err := creds.SeedBytes()
	if err != nil {
		log.Fatalf("Failed to decode engine seed: %v", err)
	}

	log.Printf("Deriving engine key for instance %s...", creds.EngineID)
	key, err := fhe.DeriveKey(seed, conf.GetInt("key_bits"))
	if err != nil {
		log.Fatalf("Failed to derive engine key: %v", err)
	}

	store, err := storage.NewFileStore(dataDir)
	if err != nil {
		log.Fatalf("Failed to open ciphertext store: %v", err)
	}
	engine := fhe.NewSimEngine(key, store)

	var captable registry.CapTable
	if path := conf.GetString("captable_file"); path != "" {
		table, err := registry.NewFileCapTable(registry.Config{HoldersFilePath: path})
		if err != nil {
			log.Fatalf("Failed to open cap table: %v", err)
		}
		if err := table.LoadHoldersFromFile(); err != nil {
			log.Fatalf("Failed to load cap table: %v", err)
		}
		captable = table
	}

	cc, err := contractapi.NewChaincode(chaincode.NewGovernanceContract(engine, captable))
	if err != nil {
		log.Fatalf("Failed to create governance chaincode: %v", err)
	}

	if address := conf.GetString("listen_address"); address != "" {
		server := &shim.ChaincodeServer{
			CCID:     conf.GetString("chaincode_id"),
			Address:  address,
			CC:       cc,
			TLSProps: shim.TLSProperties{Disabled: true},
		}
		log.Printf("Starting governance chaincode server on %s...", address)
		if err := server.Start(); err != nil {
			log.Fatalf("Chaincode server error: %v", err)
		}
		return
	}

	log.Println("Starting governance chaincode...")
	if err := cc.Start(); err != nil {
		log.Fatalf("Chaincode error: %v", err)
	}
}
