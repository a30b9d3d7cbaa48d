// Package layout clusters fused screen elements into layout groups.
//
// A group is one visual unit of the screen:
//
//   - long_box: a single element spanning most of the image width or height
//     (toolbars, separators, address bars). Never merged with neighbours.
//   - horizontal: a row of elements sharing a vertical centre band.
//   - vertical: a column of elements sharing a horizontal centre band.
//
// Elements that fit no row or column become singleton horizontal groups, so
// every element always lands in exactly one group.
//
// # Labels and Slots
//
// Groups are labelled by category letter and ordinal: L1, L2, ... first,
// then H1, H2, ..., then V1, V2, ..., each in discovery order. Within a
// group, members are ordered left-to-right (horizontal, long_box) or
// top-to-bottom (vertical), and each member is addressed by its slot id
// "<label>_<position>", e.g. H3_2.
//
// # Determinism
//
// Group is a pure function of its inputs. Ties in every sort are broken by
// the element's position in the input slice, so identical input always
// yields identical labels and slot ids.
package layout
