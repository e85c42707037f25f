package bridge

// Classification partitions the RPC vocabulary by the authority a method can
// exercise over the wallet.
type Classification int

const (
	// Unknown methods are rejected with an unsupported-method error and
	// never forwarded anywhere.
	Unknown Classification = iota
	// ReadOnly methods are answered from the permission context alone.
	ReadOnly
	// CapabilityRequiring methods can move funds or sign data and must be
	// backed by a persisted allow record before reaching the signing
	// backend.
	CapabilityRequiring
)

// Method names the bridge understands.
const (
	MethodEthAccounts        = "eth_accounts"
	MethodEthRequestAccounts = "eth_requestAccounts"
	MethodEthChainID         = "eth_chainId"
	MethodNetVersion         = "net_version"

	MethodEthSendTransaction = "eth_sendTransaction"
	MethodEthSignTransaction = "eth_signTransaction"
	MethodEthSign            = "eth_sign"
	MethodPersonalSign       = "personal_sign"
	MethodEthSignTypedData   = "eth_signTypedData"
	MethodEthSignTypedDataV1 = "eth_signTypedData_v1"
	MethodEthSignTypedDataV3 = "eth_signTypedData_v3"
	MethodEthSignTypedDataV4 = "eth_signTypedData_v4"
)

// The partition is a static table so authorization behavior stays
// deterministic and auditable; nothing is inferred from parameters.
// eth_requestAccounts is absent on purpose: it is the explicit connection
// method and the router handles it ahead of classification.
var (
	readOnlyMethods = map[string]struct{}{
		MethodEthAccounts: {},
		MethodEthChainID:  {},
		MethodNetVersion:  {},
	}

	capabilityMethods = map[string]struct{}{
		MethodEthSendTransaction: {},
		MethodEthSignTransaction: {},
		MethodEthSign:            {},
		MethodPersonalSign:       {},
		MethodEthSignTypedData:   {},
		MethodEthSignTypedDataV1: {},
		MethodEthSignTypedDataV3: {},
		MethodEthSignTypedDataV4: {},
	}
)

// Classify looks up the method in the static partition.
func Classify(method string) Classification {
	if _, ok := readOnlyMethods[method]; ok {
		return ReadOnly
	}
	if _, ok := capabilityMethods[method]; ok {
		return CapabilityRequiring
	}
	return Unknown
}
