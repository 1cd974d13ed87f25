// Package pmem maps host memory for use by a bus-master DMA engine.
//
// It maps a hugetlbfs-backed file into the process and locks it into
// physical memory, or takes an already-mapped client-supplied region as
// is, and walks /proc/self/pagemap to build the scatter-gather list of
// (user, bus, length) triples the DMA engine needs. There is no IOMMU attached to this host, so
// the "bus address" returned here is the physical address: on a host where
// the DMA engine's view of RAM isn't remapped, bus address and physical
// address coincide, which is the simplifying assumption this package makes
// in place of a real platform DMA-registration API call.
package pmem
