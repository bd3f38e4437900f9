// Command sceneflow downloads remote-sensing scene archives and runs them
// through checkpointed processing workflows.
//
// Typical use:
//
//	sceneflow config init
//	sceneflow catalog import LANDSAT_8_C1.csv.gz
//	sceneflow run
//
// A batch can be interrupted at any point; the next run skips archives that
// are already downloaded and steps that already completed.
package main
