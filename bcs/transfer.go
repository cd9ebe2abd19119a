package bcs

// FrameworkAddress is the address of the Move framework modules (0x1).
var FrameworkAddress = MustParseAddress("0x1")

// AptosAccountTransfer builds a 0x1::aptos_account::transfer payload moving
// amount of the native coin to recipient.
func AptosAccountTransfer(recipient AccountAddress, amount uint64) TransactionPayload {
	return TransactionPayload{
		Kind: PayloadEntryFunction,
		EntryFunction: &EntryFunction{
			Module:   ModuleID{Address: FrameworkAddress, Name: "aptos_account"},
			Function: "transfer",
			Args:     [][]byte{AddressArg(recipient), U64Arg(amount)},
		},
	}
}

// CoinTransfer builds a 0x1::coin::transfer<coinType> payload.
func CoinTransfer(coinType TypeTag, recipient AccountAddress, amount uint64) TransactionPayload {
	return TransactionPayload{
		Kind: PayloadEntryFunction,
		EntryFunction: &EntryFunction{
			Module:   ModuleID{Address: FrameworkAddress, Name: "coin"},
			Function: "transfer",
			TypeArgs: []TypeTag{coinType},
			Args:     [][]byte{AddressArg(recipient), U64Arg(amount)},
		},
	}
}
