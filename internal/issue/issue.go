// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	UnknownComponentId Id = iota + 1
	CustomFileNotFoundId
	CustomFileInvalidId
	NoControllerAvailableId
	ConflictingModeId
	UnknownTestId
	ChannelStartFailedId
	ContainerEngineNotFoundId
	ConfigLoadFailedId
	PermissionDeniedId
	StaleNetworkId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is the Markdown body of an entry.
	MarkdownMsg string

	// HttpLink is a documentation link.
	HttpLink string

	// Issue is a catalog entry.
	Issue struct {
		id       Id
		slug     string
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

// String returns the slug used on the command line.
func (id Id) String() string {
	if i, ok := issues[id]; ok {
		return i.slug
	}
	return fmt.Sprintf("issue-%d", int(id))
}

func (i *Issue) Id() Id { return i.id }

func (i *Issue) Slug() string { return i.slug }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the entry for a terminal with the given glamour style
// ("auto", "dark", "light", "notty" or a JSON style path).
func (i *Issue) Render(style string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), style)
}

var (
	render = glamour.Render

	unknownComponentIssue = &Issue{
		id:   UnknownComponentId,
		slug: "unknown-component",
		mdMsg: `
# Unknown component

A --topo, --switch, --host, --controller or --link value names a component
that is not registered.

## Things you can try:
- List what is available:
~~~
$ nestnet list
~~~
- Keys are case-sensitive: ` + "`ovsbr`" + ` is not ` + "`OVSBR`" + `.
- Components defined in a customization file need ` + "`--custom <file>`" + `.`,
	}

	customFileNotFoundIssue = &Issue{
		id:   CustomFileNotFoundId,
		slug: "custom-file-not-found",
		mdMsg: `
# Customization file not found

A path passed to --custom does not exist. Paths are resolved relative to
the current directory.

## Things you can try:
- Check for typos, or pass several files separated by commas:
~~~
$ nestnet run --custom topos.cue,switches.yaml
~~~`,
	}

	customFileInvalidIssue = &Issue{
		id:   CustomFileInvalidId,
		slug: "custom-file-invalid",
		mdMsg: `
# Invalid customization file

Customization files may only define these top-level names:
` + "`topos`, `switches`, `hosts`, `controllers`, `links`, `tests`, `validate`, `defaults`" + `.

## Example:
~~~cue
switches: {
	slow: {base: "ovsbr", params: {stp: true}}
}
tests: {
	smoke: ["pingall", "iperf"]
}
~~~`,
	}

	noControllerIssue = &Issue{
		id:   NoControllerAvailableId,
		slug: "no-controller",
		mdMsg: `
# No controller available

No OpenFlow controller could be found and the selected switch needs one.

## Things you can try:
- Install a reference controller (` + "`controller`, `ovs-testcontroller`" + `).
- Use a standalone bridge switch:
~~~
$ nestnet run --switch ovsbr
$ nestnet run --switch lxbr
~~~
- Point at a running controller:
~~~
$ nestnet run --controller remote,ip=192.0.2.10,port=6653
~~~`,
	}

	conflictingModeIssue = &Issue{
		id:   ConflictingModeId,
		slug: "conflicting-mode",
		mdMsg: `
# Conflicting network modes

--innamespace, --cluster and container hosts (--host docker) each replace
how the network is built and cannot be combined with cluster mode.

## Things you can try:
- Drop one of the flags and run again.`,
	}

	unknownTestIssue = &Issue{
		id:   UnknownTestId,
		slug: "unknown-test",
		mdMsg: `
# Unknown test

A --test value is neither a built-in test nor an operation of the network.

## Built-in tests:
- ` + "`all`, `none`, `build`, `pingall`, `pingpair`, `iperf`, `iperfudp`" + `

Tests chain with ` + "`+`" + ` and take arguments after commas:
~~~
$ nestnet run --test pingall+iperf,h1,h2,seconds=3
~~~`,
	}

	channelStartIssue = &Issue{
		id:   ChannelStartFailedId,
		slug: "shell-start",
		mdMsg: `
# Node shell did not start

A node's shell did not print its first prompt in time.

## Things you can try:
- Check that bash is installed on the host (and in container images).
- Raise the timeout in config.cue:
~~~cue
channel: prompt_timeout: "60s"
~~~`,
	}

	containerEngineNotFoundIssue = &Issue{
		id:   ContainerEngineNotFoundId,
		slug: "container-engine",
		mdMsg: `
# No container engine

Container hosts need docker, podman or isula on the PATH.

## Things you can try:
- Install one of them, or select it explicitly:
~~~cue
container: engine: "podman"
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id:   ConfigLoadFailedId,
		slug: "config",
		mdMsg: `
# Configuration could not be loaded

## Things you can try:
- Show the effective configuration:
~~~
$ nestnet config show
~~~
- Validate the CUE syntax of ` + "`~/.config/nestnet/config.cue`" + `.`,
	}

	permissionDeniedIssue = &Issue{
		id:   PermissionDeniedId,
		slug: "permission",
		mdMsg: `
# Permission denied

Creating namespaces, links and switches needs root privileges.

## Things you can try:
~~~
$ sudo nestnet run
~~~`,
	}

	staleNetworkIssue = &Issue{
		id:   StaleNetworkId,
		slug: "stale-network",
		mdMsg: `
# Leftovers from a previous run

Interfaces, switches or node processes from an earlier run are still
present and conflict with the new network.

## Things you can try:
~~~
$ sudo nestnet clean
~~~`,
	}

	issues = map[Id]*Issue{
		unknownComponentIssue.Id():        unknownComponentIssue,
		customFileNotFoundIssue.Id():      customFileNotFoundIssue,
		customFileInvalidIssue.Id():       customFileInvalidIssue,
		noControllerIssue.Id():            noControllerIssue,
		conflictingModeIssue.Id():         conflictingModeIssue,
		unknownTestIssue.Id():             unknownTestIssue,
		channelStartIssue.Id():            channelStartIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
		staleNetworkIssue.Id():            staleNetworkIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := slices.Collect(maps.Values(issues))
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

// Get returns the entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}

// Lookup finds an entry by slug.
func Lookup(slug string) (*Issue, bool) {
	for _, i := range issues {
		if i.slug == slug {
			return i, true
		}
	}
	return nil, false
}
