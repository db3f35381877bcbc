package model

import "testing"

func TestResourceVectorGetSet(t *testing.T) {
	var v ResourceVector
	for i, rt := range ResourceTypes {
		v.Set(rt, i+1)
	}
	for i, rt := range ResourceTypes {
		if got := v.Get(rt); got != i+1 {
			t.Fatalf("expected %s = %d, got %d", rt, i+1, got)
		}
	}
	if got := v.Get(ResourceType("gpu_limit")); got != 0 {
		t.Fatalf("expected unknown resource to read 0, got %d", got)
	}
}

func TestResourceVectorMerge(t *testing.T) {
	base := ResourceVector{Memory: 2048, CPU: 100, Disk: 4096, Servers: 1, Databases: 3, Backups: 5, Allocations: 5}
	merged := base.Merge(map[ResourceType]int{
		ResourceCPU:                 500,
		ResourceBackups:             0,
		ResourceType("bogus_limit"): 99,
	})

	if merged.CPU != 500 {
		t.Fatalf("expected merged cpu 500, got %d", merged.CPU)
	}
	if merged.Backups != 0 {
		t.Fatalf("expected explicit zero preserved, got %d", merged.Backups)
	}
	if merged.Memory != 2048 || merged.Disk != 4096 {
		t.Fatalf("expected untouched fields preserved, got %+v", merged)
	}
	if base.CPU != 100 {
		t.Fatalf("merge must not mutate receiver, got %d", base.CPU)
	}
}

func TestExceedsCeiling(t *testing.T) {
	cases := []struct {
		name    string
		ceiling int
		value   int
		want    bool
	}{
		{"zero ceiling is unlimited", 0, 1 << 30, false},
		{"under ceiling", 100, 99, false},
		{"at ceiling", 100, 100, false},
		{"over ceiling", 100, 101, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExceedsCeiling(tc.ceiling, tc.value); got != tc.want {
				t.Fatalf("ExceedsCeiling(%d, %d) = %v, want %v", tc.ceiling, tc.value, got, tc.want)
			}
		})
	}
}

func TestUserQuotaVectorRoundTrip(t *testing.T) {
	quota := &UserQuota{}
	want := ResourceVector{Memory: 1024, CPU: 200, Disk: 8192, Servers: 2, Databases: 4, Backups: 6, Allocations: 7}
	quota.SetVector(want)

	if got := quota.Vector(); got != want {
		t.Fatalf("expected vector %+v, got %+v", want, got)
	}

	quota.SetField(ResourceDisk, 16384)
	if quota.DiskLimit != 16384 {
		t.Fatalf("expected disk limit 16384, got %d", quota.DiskLimit)
	}
}

func TestServerUsage(t *testing.T) {
	server := &Server{Memory: 512, CPU: 50, Disk: 1024, DatabaseLimit: 2, BackupLimit: 3, AllocationLimit: 4}
	usage := server.Usage()

	if usage.Servers != 1 {
		t.Fatalf("one server must count once toward server_limit, got %d", usage.Servers)
	}
	if usage.Memory != 512 || usage.Databases != 2 {
		t.Fatalf("unexpected usage vector %+v", usage)
	}
}
