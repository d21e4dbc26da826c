// Package withdrawal implements the spend-authorization relation for private
// note withdrawals.
//
// Overview:
//   - A note commitment is derived from a spender secret (cm = MiMC(pk.x, pk.y)
//     with pk = G^secret over BLS12-377) and hashed with a timestamp into a
//     leaf of a depth-32 binary Merkle tree
//   - Withdrawing proves, in zero knowledge, that the leaf sits at a claimed
//     position under a published root, and reveals a nullifier
//     MiMC(secret, index) that marks the note spent
//   - The relation exists twice: as a pure native evaluation (Evaluate) and as
//     a gnark circuit (Circuit) proven with Groth16 over BW6-761
//
// Security Model:
//   - MiMC is used for commitments, leaves, tree nodes, and nullifiers
//   - BW6-761's scalar field equals BLS12-377's base field, so public-key
//     coordinates are hashed without reduction
//   - Nullifier uniqueness holds up to MiMC collisions and up to the wider
//     system never reusing a (secret, index) pair
//   - The relation computes a root from the claimed path; comparing it against
//     the authoritative published root is the verifier's job (see the ledger
//     package)
//
// The token and assetAmount public values are carried in the statement but not
// constrained by any derivation step; see Circuit.Define.
package withdrawal
