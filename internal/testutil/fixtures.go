package testutil

// TitleCommentSpec defines an obligatory root "title" and an optional root
// "comment" that must be 10 to 300 characters long and must not start with
// a digit or a space.
const TitleCommentSpec = `
__name__: Title Comment
__contact__: https://orcid.org/0000-0002-1825-0097

title:
  validator: str
  description: Title of the file
  target_method: root_create
  default_value: $EMPTY
comment:
  validator: regex(^[^\d\s].{9,299}$)
  description: A free text comment
  target_method: root_create
  default_value: $NONE
`

// MeasurementSpec defines leaf attributes with a cross-field constraint and a
// group attribute with a literal default.
const MeasurementSpec = `
__name__: measurement
__contact__: lab@example.org
__institution__: https://ror.org/05dxps055
__decoders__: [scale_and_offset]

$Unit: [m, s, degC]
$Operator:
  name: str
  orcid?: orcid

value:
  validator: float_with_units
  description: Measured value
  target_method: leaf_create
  default_value: $EMPTY
  requirements: [units]
units:
  validator: $Unit
  description: Unit of the value
  target_method: leaf_create
  default_value: $EMPTY
  position:
    before: value
operator:
  validator: $Operator
  description: Who took the measurement
  target_method: group_create
version:
  validator: semver
  description: Layout version
  target_method: group_create
  default_value: 1.0.0
`
