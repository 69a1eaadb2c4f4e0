package merkle_test

import (
	"fmt"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/andrey/allowlist-attestor/internal/allowlist/merkle"
	"github.com/andrey/allowlist-attestor/internal/allowlist/record"
)

func benchRecords(n int, seed int64) []record.Record {
	rnd := rand.New(rand.NewSource(seed))
	records := make([]record.Record, n)
	for i := 0; i < n; i++ {
		var addr common.Address
		rnd.Read(addr[:])
		balance := new(big.Int).SetInt64(rnd.Int63())
		records[i] = record.Record{Address: addr, Balance: balance}
	}
	return records
}

// BenchmarkRoot_100000 and BenchmarkRoot_1000000 cover the n ∈ {10^5, 10^6}
// performance envelope; they don't assert wall-time, only allocate and run.
func BenchmarkRoot_100000(b *testing.B) {
	benchmarkRoot(b, 100_000)
}

func BenchmarkRoot_1000000(b *testing.B) {
	benchmarkRoot(b, 1_000_000)
}

func benchmarkRoot(b *testing.B, n int) {
	records := benchRecords(n, int64(n))
	e := merkle.NewEngine()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Root(records); err != nil {
			b.Fatalf("unexpected error at n=%d: %v", n, err)
		}
	}
}

func BenchmarkInclusionProof_100000(b *testing.B) {
	n := 100_000
	records := benchRecords(n, 42)
	target := records[n/2]
	e := merkle.NewEngine()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := e.InclusionProof(records, target); err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
	}
}

func ExampleEngine_Root() {
	r, _ := record.Parse("F977814e90dA44bFA03b6295A0616a897441aceC", "1")
	e := merkle.NewEngine()
	root, err := e.Root([]record.Record{r})
	if err != nil {
		panic(err)
	}
	fmt.Println(len(root))
	// Output: 32
}
